// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package warehouse

import (
	"fmt"
	"strings"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
)

// quoteIdent quotes a single identifier part, doubling embedded quotes.
func quoteIdent(part string) string {
	return `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
}

// quoteQualified quotes a dotted identifier part by part.
func quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(p)
	}

	return strings.Join(parts, ".")
}

// quoteLiteral renders a single-quoted SQL string literal.
func quoteLiteral(val string) string {
	return "'" + strings.ReplaceAll(val, "'", "''") + "'"
}

func createExternalVolumeSQL(spec bridge.MountSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE OR REPLACE EXTERNAL VOLUME %s\n", quoteIdent(spec.Name))
	b.WriteString("  STORAGE_LOCATIONS = (\n    (\n")
	fmt.Fprintf(&b, "      NAME = %s,\n", quoteLiteral(spec.Name))
	fmt.Fprintf(&b, "      STORAGE_PROVIDER = %s,\n", quoteLiteral(string(spec.Provider)))
	fmt.Fprintf(&b, "      STORAGE_BASE_URL = %s", quoteLiteral(spec.BaseURL))
	if spec.Provider == bridge.ProviderAzure {
		fmt.Fprintf(&b, ",\n      AZURE_TENANT_ID = %s", quoteLiteral(spec.TenantID))
	}
	b.WriteString("\n    )\n  )\n")
	fmt.Fprintf(&b, "  ALLOW_WRITES = %t", !spec.ReadOnly)

	return b.String()
}

func describeExternalVolumeSQL(name string) string {
	return "DESC EXTERNAL VOLUME " + quoteIdent(name)
}

func createIcebergTableSQL(req CreateTableRequest) string {
	var b strings.Builder
	switch req.Mode {
	case bridge.WritePath:
		// IF NOT EXISTS keeps the call repeatable; the registrar has
		// already ruled out schema conflicts and stale metadata.
		fmt.Fprintf(&b, "CREATE ICEBERG TABLE IF NOT EXISTS %s (\n", quoteQualified(req.QualifiedName))
		cols := make([]string, len(req.Columns))
		for i, c := range req.Columns {
			cols[i] = fmt.Sprintf("  %s %s", quoteIdent(c.Name), c.Type)
		}
		b.WriteString(strings.Join(cols, ",\n"))
		b.WriteString("\n)\n  CATALOG = 'SNOWFLAKE'\n")
		fmt.Fprintf(&b, "  EXTERNAL_VOLUME = %s\n", quoteLiteral(req.Volume))
		fmt.Fprintf(&b, "  BASE_LOCATION = %s", quoteLiteral(req.BaseLocation))
	case bridge.ReadPath:
		fmt.Fprintf(&b, "CREATE ICEBERG TABLE %s\n", quoteQualified(req.QualifiedName))
		fmt.Fprintf(&b, "  EXTERNAL_VOLUME = %s\n", quoteLiteral(req.Volume))
		fmt.Fprintf(&b, "  CATALOG = %s\n", quoteLiteral(req.CatalogIntegration))
		fmt.Fprintf(&b, "  METADATA_FILE_PATH = %s", quoteLiteral(req.MetadataFilePath))
	}

	return b.String()
}

func createCatalogIntegrationSQL(integ CatalogIntegration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE CATALOG INTEGRATION IF NOT EXISTS %s\n", quoteIdent(integ.Name))
	fmt.Fprintf(&b, "  CATALOG_SOURCE = %s\n", integ.Source)
	fmt.Fprintf(&b, "  TABLE_FORMAT = %s\n", integ.TableFormat)
	if strings.EqualFold(integ.Source, "GLUE") {
		fmt.Fprintf(&b, "  GLUE_AWS_ROLE_ARN = %s\n", quoteLiteral(integ.GlueAwsRoleARN))
		fmt.Fprintf(&b, "  GLUE_CATALOG_ID = %s\n", quoteLiteral(integ.GlueCatalogID))
		fmt.Fprintf(&b, "  GLUE_REGION = %s\n", quoteLiteral(integ.GlueRegion))
		fmt.Fprintf(&b, "  CATALOG_NAMESPACE = %s\n", quoteLiteral(integ.GlueDatabase))
	}
	fmt.Fprintf(&b, "  ENABLED = %t", integ.Enabled)

	return b.String()
}

func icebergTableInformationSQL(qualifiedName string) string {
	return "SELECT SYSTEM$GET_ICEBERG_TABLE_INFORMATION(" +
		quoteLiteral(qualifiedName) + ")"
}

func countRowsSQL(qualifiedName string) string {
	return "SELECT COUNT(*) FROM " + quoteQualified(qualifiedName)
}

func sampleRowsSQL(qualifiedName string, limit int) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteQualified(qualifiedName), limit)
}
