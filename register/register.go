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

// Package register creates Iceberg tables on the warehouse: managed
// tables whose data lands on the mount (write path), and references to
// tables whose metadata already lives there (read path).
package register

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gocloud.dev/blob"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/lake"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/warehouse"
)

// WarehouseAPI is the slice of the warehouse the registrar needs.
type WarehouseAPI interface {
	TableExists(ctx context.Context, qualifiedName string) (bool, error)
	DescribeTable(ctx context.Context, qualifiedName string) ([]bridge.Column, error)
	CreateIcebergTable(ctx context.Context, req warehouse.CreateTableRequest) (warehouse.TableDescriptor, error)
	GetIcebergTableInformation(ctx context.Context, qualifiedName string) (warehouse.TableInformation, error)
}

// Mount bundles the resolved context a table registration runs in: the
// volume on the warehouse side and the opened bucket on the storage
// side, with Prefix locating the volume root within the bucket.
type Mount struct {
	Volume             warehouse.VolumeDescriptor
	Bucket             *blob.Bucket
	Prefix             string
	CatalogIntegration string
}

// tableKey returns the bucket key of a volume-relative location.
func (m Mount) tableKey(location string) string {
	return path.Join(m.Prefix, strings.TrimPrefix(location, "/"))
}

// volumeRelative converts a bucket key back to a volume-relative path.
func (m Mount) volumeRelative(key string) string {
	if m.Prefix == "" {
		return key
	}

	return strings.TrimPrefix(strings.TrimPrefix(key, m.Prefix), "/")
}

// Registrar registers tables. Safe for concurrent use; each table is
// registered by exactly one caller.
type Registrar struct {
	wh       WarehouseAPI
	attempts uint64
	interval time.Duration
	logger   *slog.Logger
}

// Option configures a Registrar.
type Option func(*Registrar)

// WithAttempts bounds the re-list-and-retry loop for metadata races.
func WithAttempts(n int) Option {
	return func(r *Registrar) {
		if n > 0 {
			r.attempts = uint64(n)
		}
	}
}

// WithRetryInterval sets the pause between metadata retries.
func WithRetryInterval(d time.Duration) Option {
	return func(r *Registrar) { r.interval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registrar) { r.logger = l }
}

// New builds a Registrar.
func New(wh WarehouseAPI, opts ...Option) *Registrar {
	r := &Registrar{
		wh:       wh,
		attempts: 3,
		interval: 2 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register registers the table described by spec on the given mount.
func (r *Registrar) Register(ctx context.Context, mount Mount, spec bridge.TableSpec) (warehouse.TableDescriptor, error) {
	if err := spec.Validate(); err != nil {
		return warehouse.TableDescriptor{}, err
	}

	switch spec.Mode {
	case bridge.WritePath:
		return r.registerWrite(ctx, mount, spec)
	case bridge.ReadPath:
		return r.registerRead(ctx, mount, spec)
	}

	return warehouse.TableDescriptor{}, fmt.Errorf("table %q: unknown mode %q", spec.QualifiedName, spec.Mode)
}

func (r *Registrar) registerWrite(ctx context.Context, mount Mount, spec bridge.TableSpec) (warehouse.TableDescriptor, error) {
	exists, err := r.wh.TableExists(ctx, spec.QualifiedName)
	if err != nil {
		return warehouse.TableDescriptor{}, err
	}

	if exists {
		existing, err := r.wh.DescribeTable(ctx, spec.QualifiedName)
		if err != nil {
			return warehouse.TableDescriptor{}, err
		}
		if !columnsCompatible(spec.Columns, existing) {
			return warehouse.TableDescriptor{}, fmt.Errorf("%w: table %q exists with a different schema",
				bridge.ErrSchemaConflict, spec.QualifiedName)
		}

		// Same spec registered twice: report the existing table.
		desc := warehouse.TableDescriptor{
			QualifiedName: spec.QualifiedName,
			Volume:        mount.Volume.Name,
			BaseLocation:  spec.BaseLocation,
			Columns:       spec.Columns,
		}
		if info, err := r.wh.GetIcebergTableInformation(ctx, spec.QualifiedName); err == nil {
			desc.MetadataLocation = info.MetadataLocation
		}
		r.logger.Info("table already registered", "table", spec.QualifiedName)

		return desc, nil
	}

	// The warehouse does not know this table, so any metadata already
	// at the base location belongs to a previous incarnation. One
	// monotone lineage is tolerated; colliding generations mean two
	// lineages and need a manual clean-up first.
	snaps, err := lake.ListSnapshots(ctx, mount.Bucket, mount.tableKey(spec.BaseLocation))
	if err != nil && !errors.Is(err, bridge.ErrNoMetadataFound) {
		return warehouse.TableDescriptor{}, err
	}
	if lake.HasDuplicateGenerations(snaps) {
		return warehouse.TableDescriptor{}, fmt.Errorf("%w: base location %q holds metadata from more than one table; remove the stale files and retry",
			bridge.ErrMultipleMetadataSets, spec.BaseLocation)
	}

	return r.wh.CreateIcebergTable(ctx, warehouse.CreateTableRequest{
		QualifiedName: spec.QualifiedName,
		Volume:        mount.Volume.Name,
		Mode:          bridge.WritePath,
		Columns:       spec.Columns,
		BaseLocation:  spec.BaseLocation,
	})
}

func (r *Registrar) registerRead(ctx context.Context, mount Mount, spec bridge.TableSpec) (warehouse.TableDescriptor, error) {
	var desc warehouse.TableDescriptor

	op := func() error {
		snap, err := r.resolveSnapshot(ctx, mount, spec)
		if err != nil {
			if errors.Is(err, bridge.ErrNoMetadataFound) {
				return err // retryable: the source may not have committed yet
			}

			return backoff.Permanent(err)
		}

		// Guard against the snapshot vanishing between listing and
		// registration: a concurrent writer may have replaced it.
		if ok, err := mount.Bucket.Exists(ctx, snap.FilePath); err == nil && !ok {
			return fmt.Errorf("%w: %s", bridge.ErrMetadataNotFound, snap.FilePath)
		}

		desc, err = r.wh.CreateIcebergTable(ctx, warehouse.CreateTableRequest{
			QualifiedName:      spec.QualifiedName,
			Volume:             mount.Volume.Name,
			Mode:               bridge.ReadPath,
			MetadataFilePath:   mount.volumeRelative(snap.FilePath),
			CatalogIntegration: mount.CatalogIntegration,
		})
		if err != nil {
			if errors.Is(err, bridge.ErrMetadataNotFound) {
				r.logger.Warn("metadata file vanished, re-listing",
					"table", spec.QualifiedName, "path", snap.FilePath)

				return err
			}

			return backoff.Permanent(err)
		}

		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(r.interval), r.attempts-1)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}

		return warehouse.TableDescriptor{}, err
	}

	return desc, nil
}

// resolveSnapshot returns the snapshot to register: the explicitly
// pinned metadata path when the spec has one, otherwise the latest
// snapshot discovered under the table root.
func (r *Registrar) resolveSnapshot(ctx context.Context, mount Mount, spec bridge.TableSpec) (bridge.MetadataSnapshot, error) {
	if spec.MetadataPath != "" {
		return bridge.MetadataSnapshot{
			TablePath: spec.BaseLocation,
			FilePath:  mount.tableKey(spec.MetadataPath),
		}, nil
	}

	return lake.LatestSnapshot(ctx, mount.Bucket, mount.tableKey(spec.BaseLocation))
}

// columnsCompatible compares schemas by name and normalized type,
// ignoring order.
func columnsCompatible(want, have []bridge.Column) bool {
	if len(want) != len(have) {
		return false
	}

	types := make(map[string]string, len(have))
	for _, c := range have {
		types[strings.ToLower(c.Name)] = normalizeType(c.Type)
	}
	for _, c := range want {
		t, ok := types[strings.ToLower(c.Name)]
		if !ok || t != normalizeType(c.Type) {
			return false
		}
	}

	return true
}

func normalizeType(t string) string {
	return strings.ToUpper(strings.Join(strings.Fields(t), ""))
}
