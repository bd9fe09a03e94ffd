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

// Package volume registers external volumes on the warehouse and
// extracts the service principal that the storage side must grant
// access to.
package volume

import (
	"context"
	"log/slog"
	"regexp"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/warehouse"
)

// WarehouseAPI is the slice of the warehouse the registrar needs.
type WarehouseAPI interface {
	CreateOrReplaceExternalVolume(ctx context.Context, spec bridge.MountSpec) (warehouse.VolumeDescriptor, error)
	DescribeExternalVolume(ctx context.Context, name string) (warehouse.VolumeDescriptor, error)
}

// Registrar issues idempotent create-or-replace calls for mounts.
type Registrar struct {
	wh     WarehouseAPI
	logger *slog.Logger
}

// Option configures a Registrar.
type Option func(*Registrar)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registrar) { r.logger = l }
}

// New builds a Registrar on top of the given warehouse.
func New(wh WarehouseAPI, opts ...Option) *Registrar {
	r := &Registrar{wh: wh, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Snowflake appends an underscore and a numeric suffix to the
// multi-tenant app name; the Azure portal shows the bare name.
var appNameSuffix = regexp.MustCompile(`_\d+$`)

// PrincipalDisplayName derives the service principal display name from
// the volume's multi-tenant app name.
func PrincipalDisplayName(appName string) string {
	return appNameSuffix.ReplaceAllString(appName, "")
}

// Ensure creates or replaces the external volume for spec and returns
// its descriptor together with the service principal the consent
// resolver must wait on. An invalid spec fails with ErrProviderRejected
// before any call reaches the warehouse.
func (r *Registrar) Ensure(ctx context.Context, spec bridge.MountSpec) (warehouse.VolumeDescriptor, bridge.ServicePrincipalRef, error) {
	if err := spec.Validate(); err != nil {
		return warehouse.VolumeDescriptor{}, bridge.ServicePrincipalRef{}, err
	}

	desc, err := r.wh.CreateOrReplaceExternalVolume(ctx, spec)
	if err != nil {
		return warehouse.VolumeDescriptor{}, bridge.ServicePrincipalRef{}, err
	}

	principal := bridge.ServicePrincipalRef{
		DisplayName:  PrincipalDisplayName(desc.MultiTenantAppName),
		ConsentState: bridge.ConsentUnknown,
	}

	r.logger.Info("external volume ready",
		"volume", desc.Name,
		"provider", desc.Provider,
		"principal", principal.DisplayName,
		"allow_writes", desc.AllowWrites)

	return desc, principal, nil
}
