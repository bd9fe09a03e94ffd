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

// Package orchestrator drives a full run: ensure external volumes,
// wait for consent per mount, register the mount's tables concurrently
// once consent is granted, validate, and journal the progress. A
// failing table never halts its siblings; a failing mount skips only
// its own tables.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	"golang.org/x/sync/errgroup"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/config"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/consent"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/journal"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/lake"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/register"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/validate"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/volume"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/warehouse"
)

// BucketOpener opens the bucket backing a mount location. The default
// is lake.OpenLocation; tests substitute in-memory buckets.
type BucketOpener func(ctx context.Context, location string, props bridge.Properties) (*blob.Bucket, string, error)

// MountResult is the outcome of one mount's volume + consent stages.
type MountResult struct {
	Mount     string
	Volume    warehouse.VolumeDescriptor
	Principal bridge.ServicePrincipalRef
	Err       error
}

// TableResult is the outcome of one table's registration + validation.
type TableResult struct {
	Table      string
	Mount      string
	Descriptor warehouse.TableDescriptor
	Validation *validate.Result
	Err        error
}

// Report summarizes a run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Mounts     []MountResult
	Tables     []TableResult
}

// FailedTables returns the tables that did not complete.
func (r *Report) FailedTables() []TableResult {
	var out []TableResult
	for _, t := range r.Tables {
		if t.Err != nil {
			out = append(out, t)
		}
	}

	return out
}

// Orchestrator runs the pipeline.
type Orchestrator struct {
	cfg        *config.Config
	wh         warehouse.Warehouse
	volumes    *volume.Registrar
	resolver   *consent.Resolver
	registrar  *register.Registrar
	validator  *validate.Validator
	jr         *journal.Journal
	openBucket BucketOpener
	logger     *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithJournal enables run journaling.
func WithJournal(jr *journal.Journal) Option {
	return func(o *Orchestrator) { o.jr = jr }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithBucketOpener overrides how mount locations are opened.
func WithBucketOpener(open BucketOpener) Option {
	return func(o *Orchestrator) { o.openBucket = open }
}

// New wires an Orchestrator from the run config, the warehouse and the
// access-control surface the consent resolver polls.
func New(cfg *config.Config, wh warehouse.Warehouse, poller consent.Poller, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		wh:         wh,
		openBucket: lake.OpenLocation,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.volumes = volume.New(wh, volume.WithLogger(o.logger))
	o.resolver = consent.NewResolver(poller,
		consent.WithInterval(cfg.Consent.PollInterval),
		consent.WithMaxInterval(cfg.Consent.MaxPollInterval),
		consent.WithLogger(o.logger))
	o.registrar = register.New(wh,
		register.WithAttempts(cfg.LocateAttempts),
		register.WithLogger(o.logger))
	o.validator = validate.New(wh,
		validate.WithSampleLimit(cfg.SampleLimit),
		validate.WithLogger(o.logger))

	return o
}

// Run executes the pipeline for every configured mount and table.
// Per-mount and per-table failures land in the report; Run only
// returns an error for run-level problems such as a broken journal.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	defer func() { report.FinishedAt = time.Now().UTC() }()

	if o.jr != nil {
		if err := o.jr.Init(ctx); err != nil {
			return nil, fmt.Errorf("initializing journal: %w", err)
		}
	}

	o.logger.Info("run started", "run_id", report.RunID, "mounts", len(o.cfg.Mounts), "tables", len(o.cfg.Tables))

	for _, m := range o.cfg.Mounts {
		mres := o.processMount(ctx, report.RunID, m)
		report.Mounts = append(report.Mounts, mres)

		tables := o.cfg.TablesFor(m.Name)
		if mres.Err != nil {
			for _, t := range tables {
				report.Tables = append(report.Tables, TableResult{
					Table: t.QualifiedName,
					Mount: m.Name,
					Err:   fmt.Errorf("mount %q unavailable: %w", m.Name, mres.Err),
				})
			}

			continue
		}

		report.Tables = append(report.Tables, o.processTables(ctx, m, mres, tables)...)
	}

	o.logger.Info("run finished",
		"run_id", report.RunID,
		"failed_tables", len(report.FailedTables()))

	return report, nil
}

// processMount ensures the external volume and blocks until its
// consent resolves. Consent already journaled as granted is not
// re-polled: the grant is tenant-side state that outlives runs.
func (o *Orchestrator) processMount(ctx context.Context, runID string, m bridge.MountSpec) MountResult {
	res := MountResult{Mount: m.Name}

	vol, principal, err := o.volumes.Ensure(ctx, m)
	if err != nil {
		res.Err = err

		return res
	}
	res.Volume = vol

	if o.jr != nil {
		if state, ok, err := o.jr.MountConsent(ctx, m.Name); err == nil && ok && state == bridge.ConsentGranted {
			principal.ConsentState = bridge.ConsentGranted
			res.Principal = principal
			o.logger.Info("consent already granted, skipping poll", "mount", m.Name)

			return res
		}
	}

	cctx, cancel := context.WithTimeout(ctx, o.cfg.Consent.Deadline)
	defer cancel()

	state, err := o.resolver.Resolve(cctx, o.workspaceID(), &principal)
	res.Principal = principal
	if err != nil {
		res.Err = err
	}

	if o.jr != nil {
		if jerr := o.jr.RecordMount(ctx, runID, m.Name, principal.DisplayName, state); jerr != nil {
			o.logger.Error("journal write failed", "mount", m.Name, "error", jerr)
		}
	}

	return res
}

// processTables registers and validates the mount's tables
// concurrently. Consent has already resolved for the whole mount, so
// the workers share it read-only and never block on each other.
func (o *Orchestrator) processTables(ctx context.Context, m bridge.MountSpec, mres MountResult, tables []bridge.TableSpec) []TableResult {
	bucket, prefix, err := o.openBucket(ctx, m.BaseURL, o.cfg.Properties)
	if err != nil {
		out := make([]TableResult, 0, len(tables))
		for _, t := range tables {
			out = append(out, TableResult{
				Table: t.QualifiedName,
				Mount: m.Name,
				Err:   fmt.Errorf("opening mount storage: %w", err),
			})
		}

		return out
	}
	defer bucket.Close()

	mount := register.Mount{
		Volume:             mres.Volume,
		Bucket:             bucket,
		Prefix:             prefix,
		CatalogIntegration: o.cfg.Properties.Get("catalog-integration", ""),
	}

	var (
		mu      sync.Mutex
		results []TableResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxWorkers)

	for _, spec := range tables {
		g.Go(func() error {
			tres := o.processTable(gctx, mount, m.Name, spec)

			mu.Lock()
			results = append(results, tres)
			mu.Unlock()

			// per-table failures are isolated, never cancel the group
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (o *Orchestrator) processTable(ctx context.Context, mount register.Mount, mountName string, spec bridge.TableSpec) TableResult {
	res := TableResult{Table: spec.QualifiedName, Mount: mountName}

	skip := false
	if o.jr != nil {
		if done, err := o.jr.TableRegistered(ctx, spec.QualifiedName); err == nil && done {
			o.logger.Info("table already journaled, skipping registration", "table", spec.QualifiedName)
			skip = true
		}
	}

	if !skip {
		desc, err := o.registrar.Register(ctx, mount, spec)
		if err != nil {
			res.Err = err
			o.logger.Error("registration failed", "table", spec.QualifiedName, "error", err)
			if o.jr != nil {
				_ = o.jr.RecordTableError(ctx, mountName, spec.Mode, spec.QualifiedName, err)
			}

			return res
		}
		res.Descriptor = desc
		if o.jr != nil {
			_ = o.jr.RecordTable(ctx, mountName, spec.Mode, desc)
		}

		if spec.Mode == bridge.WritePath && spec.LoadFrom != "" {
			n, err := o.wh.LoadRows(ctx, spec.QualifiedName, spec.LoadFrom)
			if err != nil {
				res.Err = fmt.Errorf("loading rows: %w", err)
				o.logger.Error("data load failed", "table", spec.QualifiedName, "error", err)

				return res
			}
			o.logger.Info("rows loaded", "table", spec.QualifiedName, "rows", n)
		}
	}

	v := o.validator.Table(ctx, spec)
	res.Validation = &v
	if o.jr != nil {
		_ = o.jr.RecordValidation(ctx, spec.QualifiedName, v.OK())
	}

	return res
}

func (o *Orchestrator) workspaceID() string {
	if o.cfg.Workspace.ID != "" {
		return o.cfg.Workspace.ID
	}

	return o.cfg.Workspace.Name
}
