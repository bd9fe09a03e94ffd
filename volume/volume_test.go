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

package volume_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/internal"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/volume"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/warehouse"
)

func TestEnsure(t *testing.T) {
	spec := bridge.MountSpec{
		Name:     "vol1",
		Provider: bridge.ProviderAzure,
		BaseURL:  "azure://onelake.blob.fabric.microsoft.com/ws/lh.Lakehouse/Files/",
		TenantID: "tenant-1",
	}

	wh := &internal.MockWarehouse{}
	wh.On("CreateOrReplaceExternalVolume", mock.Anything, spec).
		Return(warehouse.VolumeDescriptor{
			Name:               "vol1",
			Provider:           bridge.ProviderAzure,
			MultiTenantAppName: "Snowflake2AzureIcebergVolume_1701234567890",
			AllowWrites:        true,
		}, nil).Once()

	desc, principal, err := volume.New(wh).Ensure(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "vol1", desc.Name)
	assert.Equal(t, "Snowflake2AzureIcebergVolume", principal.DisplayName)
	assert.Equal(t, bridge.ConsentUnknown, principal.ConsentState)
	wh.AssertExpectations(t)
}

func TestEnsureRejectedBeforeWarehouse(t *testing.T) {
	spec := bridge.MountSpec{
		Name:     "vol1",
		Provider: bridge.ProviderAzure,
		BaseURL:  "https://onelake.blob.fabric.microsoft.com/ws/lh.Lakehouse/Files/",
	}

	wh := &internal.MockWarehouse{}

	_, _, err := volume.New(wh).Ensure(context.Background(), spec)
	require.ErrorIs(t, err, bridge.ErrProviderRejected)
	wh.AssertNotCalled(t, "CreateOrReplaceExternalVolume", mock.Anything, mock.Anything)
}

func TestPrincipalDisplayName(t *testing.T) {
	assert.Equal(t, "MyApp", volume.PrincipalDisplayName("MyApp_123456789"))
	assert.Equal(t, "MyApp", volume.PrincipalDisplayName("MyApp"))
	assert.Equal(t, "My_App", volume.PrincipalDisplayName("My_App_42"))
}
