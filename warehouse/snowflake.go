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
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/snowflakedb/gosnowflake"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
)

var _ Warehouse = (*Snowflake)(nil)

// Snowflake implements Warehouse over a gosnowflake connection.
type Snowflake struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a Snowflake client.
type Option func(*Snowflake)

// WithLogger sets the logger used for statement tracing.
func WithLogger(l *slog.Logger) Option {
	return func(s *Snowflake) { s.logger = l }
}

// NewSnowflake opens a connection pool for the given DSN.
func NewSnowflake(dsn string, opts ...Option) (*Snowflake, error) {
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening snowflake connection: %w", err)
	}

	s := &Snowflake{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// NewSnowflakeDB wraps an existing pool, mainly for tests that stub
// the driver.
func NewSnowflakeDB(db *sql.DB, opts ...Option) *Snowflake {
	s := &Snowflake{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Close releases the underlying pool.
func (s *Snowflake) Close() error { return s.db.Close() }

func (s *Snowflake) exec(ctx context.Context, stmt string) error {
	s.logger.Debug("executing statement", "sql", firstLine(stmt))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return err
	}

	return nil
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i] + " ..."
	}

	return stmt
}

func isNotExistErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "not authorized")
}

func (s *Snowflake) CreateOrReplaceExternalVolume(ctx context.Context, spec bridge.MountSpec) (VolumeDescriptor, error) {
	if err := spec.Validate(); err != nil {
		return VolumeDescriptor{}, err
	}
	if err := s.exec(ctx, createExternalVolumeSQL(spec)); err != nil {
		return VolumeDescriptor{}, fmt.Errorf("creating external volume %q: %w", spec.Name, err)
	}

	return s.DescribeExternalVolume(ctx, spec.Name)
}

// storageLocation is the JSON blob DESC EXTERNAL VOLUME returns for
// each STORAGE_LOCATION_n property.
type storageLocation struct {
	Name                    string `json:"NAME"`
	StorageProvider         string `json:"STORAGE_PROVIDER"`
	StorageBaseURL          string `json:"STORAGE_BASE_URL"`
	AzureTenantID           string `json:"AZURE_TENANT_ID"`
	AzureMultiTenantAppName string `json:"AZURE_MULTI_TENANT_APP_NAME"`
	AzureConsentURL         string `json:"AZURE_CONSENT_URL"`
}

func (s *Snowflake) DescribeExternalVolume(ctx context.Context, name string) (VolumeDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, describeExternalVolumeSQL(name))
	if err != nil {
		if isNotExistErr(err) {
			return VolumeDescriptor{}, fmt.Errorf("%w: %s", ErrVolumeNotFound, name)
		}

		return VolumeDescriptor{}, fmt.Errorf("describing external volume %q: %w", name, err)
	}
	defer rows.Close()

	desc := VolumeDescriptor{Name: name}
	found := false
	for rows.Next() {
		var parent, property, propType, value, defVal sql.NullString
		if err := rows.Scan(&parent, &property, &propType, &value, &defVal); err != nil {
			return VolumeDescriptor{}, fmt.Errorf("scanning volume description: %w", err)
		}
		found = true

		switch {
		case strings.HasPrefix(property.String, "STORAGE_LOCATION_"):
			var loc storageLocation
			if err := json.Unmarshal([]byte(value.String), &loc); err != nil {
				return VolumeDescriptor{}, fmt.Errorf("parsing %s of volume %q: %w",
					property.String, name, err)
			}
			desc.Provider = bridge.Provider(loc.StorageProvider)
			desc.StorageBaseURL = loc.StorageBaseURL
			desc.TenantID = loc.AzureTenantID
			desc.MultiTenantAppName = loc.AzureMultiTenantAppName
			desc.ConsentURL = loc.AzureConsentURL
		case property.String == "ALLOW_WRITES":
			desc.AllowWrites = strings.EqualFold(value.String, "true")
		}
	}
	if err := rows.Err(); err != nil {
		return VolumeDescriptor{}, fmt.Errorf("describing external volume %q: %w", name, err)
	}
	if !found {
		return VolumeDescriptor{}, fmt.Errorf("%w: %s", ErrVolumeNotFound, name)
	}

	return desc, nil
}

func (s *Snowflake) CreateIcebergTable(ctx context.Context, req CreateTableRequest) (TableDescriptor, error) {
	if err := s.exec(ctx, createIcebergTableSQL(req)); err != nil {
		if req.Mode == bridge.ReadPath && isNotExistErr(err) {
			return TableDescriptor{}, fmt.Errorf("%w: %s", bridge.ErrMetadataNotFound, req.MetadataFilePath)
		}

		return TableDescriptor{}, fmt.Errorf("creating iceberg table %q: %w", req.QualifiedName, err)
	}

	desc := TableDescriptor{
		QualifiedName: req.QualifiedName,
		Volume:        req.Volume,
		BaseLocation:  req.BaseLocation,
		Columns:       req.Columns,
	}
	if info, err := s.GetIcebergTableInformation(ctx, req.QualifiedName); err == nil {
		desc.MetadataLocation = info.MetadataLocation
	}

	return desc, nil
}

func (s *Snowflake) TableExists(ctx context.Context, qualifiedName string) (bool, error) {
	_, err := s.DescribeTable(ctx, qualifiedName)
	switch {
	case err == nil:
		return true, nil
	case isNotExistErr(err):
		return false, nil
	default:
		return false, err
	}
}

func (s *Snowflake) DescribeTable(ctx context.Context, qualifiedName string) ([]bridge.Column, error) {
	rows, err := s.db.QueryContext(ctx, "DESC TABLE "+quoteQualified(qualifiedName))
	if err != nil {
		if isNotExistErr(err) {
			return nil, fmt.Errorf("%w: %s", ErrTableNotFound, qualifiedName)
		}

		return nil, fmt.Errorf("describing table %q: %w", qualifiedName, err)
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var cols []bridge.Column
	for rows.Next() {
		vals := make([]any, len(colNames))
		for i := range vals {
			vals[i] = new(sql.NullString)
		}
		if err := rows.Scan(vals...); err != nil {
			return nil, fmt.Errorf("scanning table description: %w", err)
		}

		var col bridge.Column
		for i, name := range colNames {
			v := vals[i].(*sql.NullString)
			switch strings.ToLower(name) {
			case "name":
				col.Name = v.String
			case "type":
				col.Type = v.String
			}
		}
		cols = append(cols, col)
	}

	return cols, rows.Err()
}

func (s *Snowflake) GetIcebergTableInformation(ctx context.Context, qualifiedName string) (TableInformation, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, icebergTableInformationSQL(qualifiedName)).Scan(&raw)
	if err != nil {
		if isNotExistErr(err) {
			return TableInformation{}, fmt.Errorf("%w: %s", ErrTableNotFound, qualifiedName)
		}

		return TableInformation{}, fmt.Errorf("fetching iceberg table information for %q: %w", qualifiedName, err)
	}

	var info TableInformation
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return TableInformation{}, fmt.Errorf("parsing iceberg table information for %q: %w", qualifiedName, err)
	}

	return info, nil
}

func (s *Snowflake) CreateCatalogIntegration(ctx context.Context, integ CatalogIntegration) error {
	if err := s.exec(ctx, createCatalogIntegrationSQL(integ)); err != nil {
		return fmt.Errorf("creating catalog integration %q: %w", integ.Name, err)
	}

	return nil
}

func (s *Snowflake) CountRows(ctx context.Context, qualifiedName string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, countRowsSQL(qualifiedName)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting rows of %q: %w", qualifiedName, err)
	}

	return count, nil
}

func (s *Snowflake) SampleRows(ctx context.Context, qualifiedName string, limit int) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, sampleRowsSQL(qualifiedName, limit))
	if err != nil {
		return nil, fmt.Errorf("sampling rows of %q: %w", qualifiedName, err)
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(colNames))
		for i := range vals {
			vals[i] = new(any)
		}
		if err := rows.Scan(vals...); err != nil {
			return nil, fmt.Errorf("scanning sample row: %w", err)
		}

		row := make(map[string]any, len(colNames))
		for i, name := range colNames {
			row[name] = *(vals[i].(*any))
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

// LoadRows inserts the result of fromQuery into the table and returns
// the number of rows written.
func (s *Snowflake) LoadRows(ctx context.Context, qualifiedName string, fromQuery string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s %s", quoteQualified(qualifiedName), fromQuery))
	if err != nil {
		return 0, fmt.Errorf("loading rows into %q: %w", qualifiedName, err)
	}

	// not every driver reports affected rows; treat that as zero
	n, _ := res.RowsAffected()

	return n, nil
}
