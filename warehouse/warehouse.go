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

// Package warehouse is the Snowflake-facing surface of the bridge:
// external volumes, Iceberg tables, catalog integrations and the
// validation queries. Everything is expressed through the Warehouse
// interface so components and tests can run against a fake.
package warehouse

import (
	"context"
	"errors"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
)

var (
	// ErrVolumeNotFound is returned when describing a volume that does
	// not exist.
	ErrVolumeNotFound = errors.New("external volume does not exist")

	// ErrTableNotFound is returned when describing a table that does
	// not exist.
	ErrTableNotFound = errors.New("table does not exist")
)

// VolumeDescriptor is the warehouse's view of a created external
// volume. MultiTenantAppName is the raw AZURE_MULTI_TENANT_APP_NAME
// value, including the numeric suffix Snowflake appends.
type VolumeDescriptor struct {
	Name               string
	Provider           bridge.Provider
	StorageBaseURL     string
	TenantID           string
	MultiTenantAppName string
	ConsentURL         string
	AllowWrites        bool
}

// CreateTableRequest carries everything needed to register one table.
type CreateTableRequest struct {
	QualifiedName string
	Volume        string
	Mode          bridge.TableMode
	Columns       []bridge.Column

	// BaseLocation is the table root relative to the volume, write path only.
	BaseLocation string
	// MetadataFilePath points at a discovered metadata snapshot, read path only.
	MetadataFilePath string
	// CatalogIntegration names the integration used for read-path tables.
	CatalogIntegration string
}

// TableDescriptor describes a registered table.
type TableDescriptor struct {
	QualifiedName    string
	Volume           string
	BaseLocation     string
	MetadataLocation string
	Columns          []bridge.Column
}

// CatalogIntegration describes a CREATE CATALOG INTEGRATION call.
// Source is OBJECT_STORE for metadata-file registration or GLUE to
// front an AWS Glue database.
type CatalogIntegration struct {
	Name        string
	Source      string
	TableFormat string
	Enabled     bool

	// Glue-source settings.
	GlueCatalogID    string
	GlueDatabase     string
	GlueRegion       string
	GlueAwsRoleARN   string
}

// TableInformation is the parsed result of
// SYSTEM$GET_ICEBERG_TABLE_INFORMATION.
type TableInformation struct {
	MetadataLocation string `json:"metadataLocation"`
	Status           string `json:"status"`
}

// Warehouse is the full surface consumed by the bridge. Consumers
// declare narrower interfaces; this one documents what a complete
// implementation provides.
type Warehouse interface {
	CreateOrReplaceExternalVolume(ctx context.Context, spec bridge.MountSpec) (VolumeDescriptor, error)
	DescribeExternalVolume(ctx context.Context, name string) (VolumeDescriptor, error)

	CreateIcebergTable(ctx context.Context, req CreateTableRequest) (TableDescriptor, error)
	TableExists(ctx context.Context, qualifiedName string) (bool, error)
	DescribeTable(ctx context.Context, qualifiedName string) ([]bridge.Column, error)
	GetIcebergTableInformation(ctx context.Context, qualifiedName string) (TableInformation, error)

	CreateCatalogIntegration(ctx context.Context, integ CatalogIntegration) error

	CountRows(ctx context.Context, qualifiedName string) (int64, error)
	SampleRows(ctx context.Context, qualifiedName string, limit int) ([]map[string]any, error)
	LoadRows(ctx context.Context, qualifiedName string, fromQuery string) (int64, error)
}
