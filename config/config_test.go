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

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/config"
)

const sampleConfig = `warehouse:
  dsn: user:pass@account/db/sch
  database: db
  schema: sch
workspace:
  id: ws-1234
  tenant-id: tenant-1
mounts:
  - name: vol1
    provider: AZURE
    base-url: azure://onelake.blob.fabric.microsoft.com/ws/lh.Lakehouse/Files/
  - name: vol2
    provider: S3
    base-url: s3://bucket/warehouse/
    tenant-id: other-tenant
tables:
  - name: db.sch.users
    mount: vol1
    mode: write
    base-location: users
    columns:
      - name: id
        type: int
      - name: email
        type: string
  - name: db.sch.events
    mount: vol2
    mode: read
    metadata-path: events/metadata/5.metadata.json
`

func TestParseDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxWorkers)
	assert.Equal(t, 3, cfg.LocateAttempts)
	assert.Equal(t, 10, cfg.SampleLimit)
	assert.Equal(t, 15*time.Second, cfg.Consent.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.Consent.MaxPollInterval)
	assert.Equal(t, 30*time.Minute, cfg.Consent.Deadline)
	assert.NotNil(t, cfg.Properties)
}

func TestParseTenantInheritance(t *testing.T) {
	cfg, err := config.Parse([]byte(sampleConfig))
	require.NoError(t, err)

	vol1, ok := cfg.Mount("vol1")
	require.True(t, ok)
	assert.Equal(t, "tenant-1", vol1.TenantID)

	vol2, ok := cfg.Mount("vol2")
	require.True(t, ok)
	assert.Equal(t, "other-tenant", vol2.TenantID)
}

func TestParseQualifiesTableNames(t *testing.T) {
	raw := `warehouse:
  dsn: dsn
  database: db
  schema: sch
workspace:
  id: ws
mounts:
  - name: vol1
    provider: AZURE
    base-url: azure://host/a/
tables:
  - name: users
    mount: vol1
    mode: write
    base-location: users
    columns:
      - name: id
        type: int
  - name: other.events
    mount: vol1
    mode: read
    metadata-path: events/metadata/1.metadata.json
  - name: x.y.orders
    mount: vol1
    mode: read
    metadata-path: orders/metadata/1.metadata.json
`
	cfg, err := config.Parse([]byte(raw))
	require.NoError(t, err)

	require.Len(t, cfg.Tables, 3)
	assert.Equal(t, "db.sch.users", cfg.Tables[0].QualifiedName)
	assert.Equal(t, "db.other.events", cfg.Tables[1].QualifiedName)
	assert.Equal(t, "x.y.orders", cfg.Tables[2].QualifiedName, "fully qualified names are untouched")
}

func TestParseRejectsDuplicateMounts(t *testing.T) {
	raw := `warehouse:
  dsn: dsn
workspace:
  id: ws
mounts:
  - name: vol1
    provider: AZURE
    base-url: azure://host/a/
  - name: vol1
    provider: AZURE
    base-url: azure://host/b/
`
	_, err := config.Parse([]byte(raw))
	require.ErrorContains(t, err, `duplicate mount "vol1"`)
}

func TestParseRejectsUnknownMountRef(t *testing.T) {
	raw := `warehouse:
  dsn: dsn
workspace:
  id: ws
mounts:
  - name: vol1
    provider: AZURE
    base-url: azure://host/a/
tables:
  - name: db.sch.users
    mount: nope
    mode: write
    base-location: users
    columns:
      - name: id
        type: int
`
	_, err := config.Parse([]byte(raw))
	require.ErrorContains(t, err, `unknown mount "nope"`)
}

func TestParseRequiresWarehouseAndWorkspace(t *testing.T) {
	_, err := config.Parse([]byte(`workspace: {id: ws}`))
	require.ErrorContains(t, err, "warehouse dsn")

	_, err = config.Parse([]byte(`warehouse: {dsn: dsn}`))
	require.ErrorContains(t, err, "workspace id or name")
}

func TestTablesFor(t *testing.T) {
	cfg, err := config.Parse([]byte(sampleConfig))
	require.NoError(t, err)

	tables := cfg.TablesFor("vol1")
	require.Len(t, tables, 1)
	assert.Equal(t, "db.sch.users", tables[0].QualifiedName)
	assert.Equal(t, bridge.WritePath, tables[0].Mode)

	assert.Empty(t, cfg.TablesFor("missing"))
}

func TestLoadFromHome(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".onelake-bridge.yaml"), []byte(sampleConfig), 0o600))
	t.Setenv("ONELAKE_BRIDGE_HOME", dir)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "ws-1234", cfg.Workspace.ID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
