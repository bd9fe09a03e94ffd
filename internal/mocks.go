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

package internal

import (
	"context"

	"github.com/stretchr/testify/mock"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/lake"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/warehouse"
)

// MockWarehouse is a testify mock of the full warehouse surface.
type MockWarehouse struct {
	mock.Mock
}

var _ warehouse.Warehouse = (*MockWarehouse)(nil)

func (m *MockWarehouse) CreateOrReplaceExternalVolume(ctx context.Context, spec bridge.MountSpec) (warehouse.VolumeDescriptor, error) {
	args := m.Called(ctx, spec)

	return args.Get(0).(warehouse.VolumeDescriptor), args.Error(1)
}

func (m *MockWarehouse) DescribeExternalVolume(ctx context.Context, name string) (warehouse.VolumeDescriptor, error) {
	args := m.Called(ctx, name)

	return args.Get(0).(warehouse.VolumeDescriptor), args.Error(1)
}

func (m *MockWarehouse) CreateIcebergTable(ctx context.Context, req warehouse.CreateTableRequest) (warehouse.TableDescriptor, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(warehouse.TableDescriptor), args.Error(1)
}

func (m *MockWarehouse) TableExists(ctx context.Context, qualifiedName string) (bool, error) {
	args := m.Called(ctx, qualifiedName)

	return args.Bool(0), args.Error(1)
}

func (m *MockWarehouse) DescribeTable(ctx context.Context, qualifiedName string) ([]bridge.Column, error) {
	args := m.Called(ctx, qualifiedName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]bridge.Column), args.Error(1)
}

func (m *MockWarehouse) GetIcebergTableInformation(ctx context.Context, qualifiedName string) (warehouse.TableInformation, error) {
	args := m.Called(ctx, qualifiedName)

	return args.Get(0).(warehouse.TableInformation), args.Error(1)
}

func (m *MockWarehouse) CreateCatalogIntegration(ctx context.Context, integ warehouse.CatalogIntegration) error {
	return m.Called(ctx, integ).Error(0)
}

func (m *MockWarehouse) CountRows(ctx context.Context, qualifiedName string) (int64, error) {
	args := m.Called(ctx, qualifiedName)

	return args.Get(0).(int64), args.Error(1)
}

func (m *MockWarehouse) SampleRows(ctx context.Context, qualifiedName string, limit int) ([]map[string]any, error) {
	args := m.Called(ctx, qualifiedName, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]map[string]any), args.Error(1)
}

func (m *MockWarehouse) LoadRows(ctx context.Context, qualifiedName string, fromQuery string) (int64, error) {
	args := m.Called(ctx, qualifiedName, fromQuery)

	return args.Get(0).(int64), args.Error(1)
}

// MockAccess is a testify mock of the access-control surface.
type MockAccess struct {
	mock.Mock
}

func (m *MockAccess) GetRoleAssignments(ctx context.Context, workspaceID string) ([]lake.RoleAssignment, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]lake.RoleAssignment), args.Error(1)
}

func (m *MockAccess) AddRoleAssignment(ctx context.Context, workspaceID, principalID, principalType string, role lake.Role) error {
	return m.Called(ctx, workspaceID, principalID, principalType, role).Error(0)
}
