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

// Package bridge defines the data model shared by the components that
// register Iceberg tables across a Snowflake account and a OneLake
// (Fabric) workspace: external volume mounts, table specs, discovered
// metadata snapshots and the consent state of the service principal
// that Snowflake presents to the storage side.
package bridge

import (
	"fmt"
	"net/url"
	"strings"
)

// Provider identifies the cloud storage backing an external volume.
type Provider string

const (
	ProviderAzure Provider = "AZURE"
	ProviderS3    Provider = "S3"
	ProviderGCS   Provider = "GCS"
)

// schemes accepted per provider. Snowflake external volumes address
// storage with cloud-native schemes, never https.
var providerSchemes = map[Provider][]string{
	ProviderAzure: {"azure", "abfss"},
	ProviderS3:    {"s3"},
	ProviderGCS:   {"gcs", "gs"},
}

// MountSpec describes one external volume: a named, credentialed
// pointer from the warehouse to a storage location.
type MountSpec struct {
	Name     string   `yaml:"name"`
	Provider Provider `yaml:"provider"`
	BaseURL  string   `yaml:"base-url"`
	TenantID string   `yaml:"tenant-id"`
	ReadOnly bool     `yaml:"read-only"`
}

// Validate checks the mount before anything is sent to the warehouse.
// A generic web scheme or an unknown provider fails with
// ErrProviderRejected so the caller can bail out without a network call.
func (m MountSpec) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: mount has no name", ErrProviderRejected)
	}

	schemes, ok := providerSchemes[m.Provider]
	if !ok {
		return fmt.Errorf("%w: unsupported storage provider %q for mount %q",
			ErrProviderRejected, m.Provider, m.Name)
	}

	u, err := url.Parse(m.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: mount %q base url: %s", ErrProviderRejected, m.Name, err)
	}

	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}

	return fmt.Errorf("%w: mount %q uses scheme %q, want one of %s",
		ErrProviderRejected, m.Name, u.Scheme, strings.Join(schemes, ", "))
}

// ConsentState tracks the access-control grant for a service principal
// on the storage platform side.
type ConsentState int

const (
	ConsentUnknown ConsentState = iota
	ConsentPending
	ConsentGranted
	ConsentDenied
)

func (c ConsentState) String() string {
	switch c {
	case ConsentUnknown:
		return "unknown"
	case ConsentPending:
		return "pending"
	case ConsentGranted:
		return "granted"
	case ConsentDenied:
		return "denied"
	}

	return fmt.Sprintf("ConsentState(%d)", int(c))
}

// Terminal reports whether the state can no longer change within a run.
func (c ConsentState) Terminal() bool {
	return c == ConsentGranted || c == ConsentDenied
}

// ServicePrincipalRef is a read-only view of the multi-tenant app that
// the warehouse created for a mount. It is discovered from the volume
// descriptor after creation and refreshed by the consent resolver,
// never cached across runs.
type ServicePrincipalRef struct {
	DisplayName  string
	ConsentState ConsentState
}

// TableMode selects how a table is registered.
type TableMode string

const (
	// WritePath creates a warehouse-managed Iceberg table whose data and
	// metadata are written to the mount's storage.
	WritePath TableMode = "write"
	// ReadPath registers a reference to a table whose authoritative
	// metadata already lives on the storage side.
	ReadPath TableMode = "read"
)

// Column is one column of an explicit table schema.
type Column struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// TableSpec describes one table to register. BaseLocation applies to
// WritePath mode; MetadataPath applies to ReadPath mode and may be left
// empty to have the latest metadata snapshot discovered by listing.
type TableSpec struct {
	QualifiedName string    `yaml:"name"`
	MountRef      string    `yaml:"mount"`
	Mode          TableMode `yaml:"mode"`
	BaseLocation  string    `yaml:"base-location"`
	MetadataPath  string    `yaml:"metadata-path"`
	Columns       []Column  `yaml:"columns"`

	// LoadFrom, when set on a write-path table, is a SELECT statement
	// whose result is loaded into the table right after creation.
	LoadFrom string `yaml:"load-from"`

	// ExpectedRows, when non-negative, lets the validator warn about a
	// surprising count. The orchestrator never fails on it.
	ExpectedRows int64 `yaml:"expected-rows"`
}

// Validate checks internal consistency of the spec.
func (t TableSpec) Validate() error {
	if t.QualifiedName == "" {
		return fmt.Errorf("table spec has no name")
	}
	if t.MountRef == "" {
		return fmt.Errorf("table %q references no mount", t.QualifiedName)
	}

	switch t.Mode {
	case WritePath:
		if t.BaseLocation == "" {
			return fmt.Errorf("write-path table %q has no base location", t.QualifiedName)
		}
		if len(t.Columns) == 0 {
			return fmt.Errorf("write-path table %q has no columns", t.QualifiedName)
		}
	case ReadPath:
		if t.MetadataPath == "" && t.BaseLocation == "" {
			return fmt.Errorf("read-path table %q needs a metadata path or a base location to discover one",
				t.QualifiedName)
		}
	default:
		return fmt.Errorf("table %q has invalid mode %q", t.QualifiedName, t.Mode)
	}

	return nil
}

// MetadataSnapshot is one discovered metadata file of an Iceberg table.
// Snapshots are immutable; the highest generation is authoritative.
type MetadataSnapshot struct {
	TablePath  string
	Generation int64
	FilePath   string
}
