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

package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/config"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/internal"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/journal"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/lake"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/orchestrator"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/warehouse"
)

// grantAfter grants Contributor to the principal once n polls happened.
type grantAfter struct {
	mu        sync.Mutex
	principal string
	after     int
	calls     int
}

func (p *grantAfter) GetRoleAssignments(_ context.Context, _ string) ([]lake.RoleAssignment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if p.calls <= p.after {
		return nil, nil
	}

	return []lake.RoleAssignment{{
		PrincipalID:   "sp-1",
		DisplayName:   p.principal,
		PrincipalType: "ServicePrincipal",
		Role:          lake.RoleContributor,
	}}, nil
}

func testConfig(tables ...bridge.TableSpec) *config.Config {
	return &config.Config{
		Warehouse: config.Warehouse{DSN: "test"},
		Workspace: config.Workspace{ID: "ws-1", TenantID: "tenant-1"},
		Consent: config.Consent{
			PollInterval:    time.Millisecond,
			MaxPollInterval: 5 * time.Millisecond,
			Deadline:        time.Second,
		},
		Mounts: []bridge.MountSpec{{
			Name:     "vol1",
			Provider: bridge.ProviderAzure,
			BaseURL:  "azure://onelake.blob.fabric.microsoft.com/ws/lh.Lakehouse/Files/",
			TenantID: "tenant-1",
		}},
		Tables:         tables,
		Properties:     bridge.Properties{},
		MaxWorkers:     4,
		LocateAttempts: 2,
		SampleLimit:    10,
	}
}

func memOpener(t *testing.T, keys ...string) orchestrator.BucketOpener {
	t.Helper()

	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { bucket.Close() })
	for _, key := range keys {
		require.NoError(t, bucket.WriteAll(context.Background(), key, []byte("{}"), nil))
	}

	return func(context.Context, string, bridge.Properties) (*blob.Bucket, string, error) {
		return bucket, "", nil
	}
}

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(
		bridge.TableSpec{
			QualifiedName: "db.sch.users",
			MountRef:      "vol1",
			Mode:          bridge.WritePath,
			BaseLocation:  "users",
			Columns:       []bridge.Column{{Name: "id", Type: "int"}},
			LoadFrom:      "SELECT id FROM db.sch.users_src",
		},
		bridge.TableSpec{
			QualifiedName: "db.sch.events",
			MountRef:      "vol1",
			Mode:          bridge.ReadPath,
			BaseLocation:  "events",
		},
	)

	wh := &internal.MockWarehouse{}
	wh.On("CreateOrReplaceExternalVolume", mock.Anything, cfg.Mounts[0]).
		Return(warehouse.VolumeDescriptor{
			Name:               "vol1",
			Provider:           bridge.ProviderAzure,
			MultiTenantAppName: "Snowflake2AzureIcebergVolume_1700000000000",
			AllowWrites:        true,
		}, nil).Once()
	wh.On("TableExists", mock.Anything, "db.sch.users").Return(false, nil).Once()
	wh.On("CreateIcebergTable", mock.Anything, mock.MatchedBy(func(req warehouse.CreateTableRequest) bool {
		return req.Mode == bridge.WritePath && req.QualifiedName == "db.sch.users"
	})).Return(warehouse.TableDescriptor{QualifiedName: "db.sch.users", Volume: "vol1"}, nil).Once()
	wh.On("CreateIcebergTable", mock.Anything, mock.MatchedBy(func(req warehouse.CreateTableRequest) bool {
		return req.Mode == bridge.ReadPath &&
			req.MetadataFilePath == "events/metadata/2.metadata.json"
	})).Return(warehouse.TableDescriptor{QualifiedName: "db.sch.events", Volume: "vol1"}, nil).Once()
	wh.On("LoadRows", mock.Anything, "db.sch.users", "SELECT id FROM db.sch.users_src").
		Return(int64(3), nil).Once()
	wh.On("CountRows", mock.Anything, mock.Anything).Return(int64(3), nil)
	wh.On("SampleRows", mock.Anything, mock.Anything, 10).
		Return([]map[string]any{{"id": 1}}, nil)

	poller := &grantAfter{principal: "Snowflake2AzureIcebergVolume", after: 2}

	o := orchestrator.New(cfg, wh, poller,
		orchestrator.WithBucketOpener(memOpener(t,
			"events/metadata/1.metadata.json",
			"events/metadata/2.metadata.json",
		)))

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)

	require.Len(t, report.Mounts, 1)
	require.NoError(t, report.Mounts[0].Err)
	assert.Equal(t, bridge.ConsentGranted, report.Mounts[0].Principal.ConsentState)
	assert.Equal(t, "Snowflake2AzureIcebergVolume", report.Mounts[0].Principal.DisplayName)

	require.Len(t, report.Tables, 2)
	assert.Empty(t, report.FailedTables())
	for _, tr := range report.Tables {
		require.NotNil(t, tr.Validation, "table %s", tr.Table)
		assert.True(t, tr.Validation.OK())
		assert.Equal(t, int64(3), tr.Validation.Count)
	}
	wh.AssertExpectations(t)
}

func TestRunIsolatesFailingTable(t *testing.T) {
	cfg := testConfig(
		bridge.TableSpec{
			QualifiedName: "db.sch.bad",
			MountRef:      "vol1",
			Mode:          bridge.WritePath,
			BaseLocation:  "bad",
			Columns:       []bridge.Column{{Name: "id", Type: "int"}},
		},
		bridge.TableSpec{
			QualifiedName: "db.sch.good",
			MountRef:      "vol1",
			Mode:          bridge.WritePath,
			BaseLocation:  "good",
			Columns:       []bridge.Column{{Name: "id", Type: "int"}},
		},
	)

	wh := &internal.MockWarehouse{}
	wh.On("CreateOrReplaceExternalVolume", mock.Anything, mock.Anything).
		Return(warehouse.VolumeDescriptor{Name: "vol1", MultiTenantAppName: "SP_1"}, nil).Once()
	// bad exists with a different schema, good registers cleanly
	wh.On("TableExists", mock.Anything, "db.sch.bad").Return(true, nil).Once()
	wh.On("DescribeTable", mock.Anything, "db.sch.bad").
		Return([]bridge.Column{{Name: "id", Type: "string"}}, nil).Once()
	wh.On("TableExists", mock.Anything, "db.sch.good").Return(false, nil).Once()
	wh.On("CreateIcebergTable", mock.Anything, mock.MatchedBy(func(req warehouse.CreateTableRequest) bool {
		return req.QualifiedName == "db.sch.good"
	})).Return(warehouse.TableDescriptor{QualifiedName: "db.sch.good"}, nil).Once()
	wh.On("CountRows", mock.Anything, "db.sch.good").Return(int64(1), nil).Once()
	wh.On("SampleRows", mock.Anything, "db.sch.good", 10).
		Return([]map[string]any{{"id": 1}}, nil).Once()

	poller := &grantAfter{principal: "SP"}

	o := orchestrator.New(cfg, wh, poller,
		orchestrator.WithBucketOpener(memOpener(t)))

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	failed := report.FailedTables()
	require.Len(t, failed, 1)
	assert.Equal(t, "db.sch.bad", failed[0].Table)
	assert.ErrorIs(t, failed[0].Err, bridge.ErrSchemaConflict)

	for _, tr := range report.Tables {
		if tr.Table == "db.sch.good" {
			require.NoError(t, tr.Err)
			require.NotNil(t, tr.Validation)
			assert.True(t, tr.Validation.OK())
		}
	}
}

func TestRunRejectedMountSkipsTables(t *testing.T) {
	cfg := testConfig(bridge.TableSpec{
		QualifiedName: "db.sch.users",
		MountRef:      "vol1",
		Mode:          bridge.WritePath,
		BaseLocation:  "users",
		Columns:       []bridge.Column{{Name: "id", Type: "int"}},
	})
	cfg.Mounts[0].BaseURL = "https://onelake.blob.fabric.microsoft.com/ws/lh.Lakehouse/Files/"

	wh := &internal.MockWarehouse{}
	poller := &grantAfter{principal: "SP"}

	report, err := orchestrator.New(cfg, wh, poller,
		orchestrator.WithBucketOpener(memOpener(t))).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Mounts, 1)
	require.ErrorIs(t, report.Mounts[0].Err, bridge.ErrProviderRejected)

	require.Len(t, report.Tables, 1)
	assert.ErrorIs(t, report.Tables[0].Err, bridge.ErrProviderRejected)
	wh.AssertNotCalled(t, "CreateOrReplaceExternalVolume", mock.Anything, mock.Anything)
	wh.AssertNotCalled(t, "CreateIcebergTable", mock.Anything, mock.Anything)
}

func TestRunResumesFromJournal(t *testing.T) {
	// A second run against the same journal skips the consent poll and
	// the registration of every table the first run completed.
	jr, err := journal.Open("sqlite", "file:orchestrator_resume?mode=memory&cache=shared")
	require.NoError(t, err)
	defer jr.Close()

	spec := bridge.TableSpec{
		QualifiedName: "db.sch.users",
		MountRef:      "vol1",
		Mode:          bridge.WritePath,
		BaseLocation:  "users",
		Columns:       []bridge.Column{{Name: "id", Type: "int"}},
	}

	vol := warehouse.VolumeDescriptor{Name: "vol1", MultiTenantAppName: "SP_1"}

	wh1 := &internal.MockWarehouse{}
	wh1.On("CreateOrReplaceExternalVolume", mock.Anything, mock.Anything).Return(vol, nil).Once()
	wh1.On("TableExists", mock.Anything, "db.sch.users").Return(false, nil).Once()
	wh1.On("CreateIcebergTable", mock.Anything, mock.Anything).
		Return(warehouse.TableDescriptor{QualifiedName: "db.sch.users"}, nil).Once()
	wh1.On("CountRows", mock.Anything, "db.sch.users").Return(int64(1), nil).Once()
	wh1.On("SampleRows", mock.Anything, "db.sch.users", 10).
		Return([]map[string]any{{"id": 1}}, nil).Once()

	poller1 := &grantAfter{principal: "SP"}

	report, err := orchestrator.New(testConfig(spec), wh1, poller1,
		orchestrator.WithJournal(jr),
		orchestrator.WithBucketOpener(memOpener(t))).Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.FailedTables())
	wh1.AssertExpectations(t)

	// Fresh orchestrator, warehouse and poller: only the journal carries
	// state across the two runs.
	wh2 := &internal.MockWarehouse{}
	wh2.On("CreateOrReplaceExternalVolume", mock.Anything, mock.Anything).Return(vol, nil).Once()
	wh2.On("CountRows", mock.Anything, "db.sch.users").Return(int64(1), nil).Once()
	wh2.On("SampleRows", mock.Anything, "db.sch.users", 10).
		Return([]map[string]any{{"id": 1}}, nil).Once()

	poller2 := &grantAfter{principal: "SP"}

	report, err = orchestrator.New(testConfig(spec), wh2, poller2,
		orchestrator.WithJournal(jr),
		orchestrator.WithBucketOpener(memOpener(t))).Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.FailedTables())
	assert.Equal(t, bridge.ConsentGranted, report.Mounts[0].Principal.ConsentState)

	poller2.mu.Lock()
	polls := poller2.calls
	poller2.mu.Unlock()
	assert.Zero(t, polls, "granted consent must not be re-polled")
	wh2.AssertNotCalled(t, "TableExists", mock.Anything, mock.Anything)
	wh2.AssertNotCalled(t, "CreateIcebergTable", mock.Anything, mock.Anything)
	wh2.AssertExpectations(t)
}

func TestRunConsentTimeoutFailsMountTables(t *testing.T) {
	cfg := testConfig(bridge.TableSpec{
		QualifiedName: "db.sch.users",
		MountRef:      "vol1",
		Mode:          bridge.WritePath,
		BaseLocation:  "users",
		Columns:       []bridge.Column{{Name: "id", Type: "int"}},
	})
	cfg.Consent.Deadline = 30 * time.Millisecond

	wh := &internal.MockWarehouse{}
	wh.On("CreateOrReplaceExternalVolume", mock.Anything, mock.Anything).
		Return(warehouse.VolumeDescriptor{Name: "vol1", MultiTenantAppName: "SP_1"}, nil).Once()

	// never grants
	poller := &grantAfter{principal: "SP", after: 1 << 30}

	report, err := orchestrator.New(cfg, wh, poller,
		orchestrator.WithBucketOpener(memOpener(t))).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Mounts, 1)
	require.ErrorIs(t, report.Mounts[0].Err, bridge.ErrConsentTimeout)
	assert.Equal(t, bridge.ConsentDenied, report.Mounts[0].Principal.ConsentState)

	require.Len(t, report.Tables, 1)
	require.ErrorIs(t, report.Tables[0].Err, bridge.ErrConsentTimeout)
	wh.AssertNotCalled(t, "CreateIcebergTable", mock.Anything, mock.Anything)
}
