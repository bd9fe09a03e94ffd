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

// Package journal persists run progress so an interrupted run can be
// resumed: which mounts reached Granted consent and which tables were
// registered and validated. Backed by bun over any supported SQL
// dialect; sqlite is the default for single-operator use.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mssqldialect"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/oracledialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/warehouse"
)

// SupportedDialect names a SQL dialect the journal can run on.
type SupportedDialect string

const (
	Postgres SupportedDialect = "postgres"
	MySQL    SupportedDialect = "mysql"
	SQLite   SupportedDialect = "sqlite"
	MSSQL    SupportedDialect = "mssql"
	Oracle   SupportedDialect = "oracle"
)

var (
	dialects  = map[SupportedDialect]schema.Dialect{}
	dialectMx sync.Mutex
)

func createDialect(d SupportedDialect) (schema.Dialect, error) {
	switch d {
	case Postgres:
		return pgdialect.New(), nil
	case MySQL:
		return mysqldialect.New(), nil
	case SQLite:
		return sqlitedialect.New(), nil
	case MSSQL:
		return mssqldialect.New(), nil
	case Oracle:
		return oracledialect.New(), nil
	default:
		return nil, fmt.Errorf("unsupported journal dialect %q", d)
	}
}

func getDialect(d SupportedDialect) (schema.Dialect, error) {
	dialectMx.Lock()
	defer dialectMx.Unlock()
	if ret, ok := dialects[d]; ok {
		return ret, nil
	}

	ret, err := createDialect(d)
	if err != nil {
		return nil, err
	}
	dialects[d] = ret

	return ret, nil
}

type mountRecord struct {
	bun.BaseModel `bun:"table:bridge_mounts"`

	Name      string `bun:",pk"`
	RunID     string
	Principal string
	Consent   string
	UpdatedAt time.Time
}

type tableRecord struct {
	bun.BaseModel `bun:"table:bridge_tables"`

	QualifiedName    string `bun:",pk"`
	Mount            string
	Mode             string
	MetadataLocation sql.NullString
	Registered       bool
	Validated        bool
	LastError        sql.NullString
	UpdatedAt        time.Time
}

// Journal records run progress.
type Journal struct {
	db *bun.DB
}

// New wraps an existing pool with the given dialect. The BRIDGEDEBUG
// environment variable turns on statement tracing.
func New(sqldb *sql.DB, dialect SupportedDialect) (*Journal, error) {
	d, err := getDialect(dialect)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, d)
	db.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithEnabled(false),
		bundebug.FromEnv("BRIDGEDEBUG"),
	))

	return &Journal{db: db}, nil
}

// Open opens a journal for the dialect/DSN pair from the config.
// sqlite DSNs go through the pure-Go shim driver.
func Open(dialect, dsn string) (*Journal, error) {
	d := SupportedDialect(strings.ToLower(dialect))

	var driver string
	switch d {
	case SQLite:
		driver = sqliteshim.ShimName
	case Postgres:
		driver = "postgres"
	case MySQL:
		driver = "mysql"
	case MSSQL:
		driver = "sqlserver"
	case Oracle:
		driver = "oracle"
	default:
		return nil, fmt.Errorf("unsupported journal dialect %q", dialect)
	}

	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}

	return New(sqldb, d)
}

// Close releases the underlying pool.
func (j *Journal) Close() error { return j.db.Close() }

// Init creates the journal tables when missing.
func (j *Journal) Init(ctx context.Context) error {
	for _, model := range []any{(*mountRecord)(nil), (*tableRecord)(nil)} {
		if _, err := j.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("creating journal tables: %w", err)
		}
	}

	return nil
}

// MountConsent returns the recorded consent state for a mount, with
// ok=false when the mount has never been recorded.
func (j *Journal) MountConsent(ctx context.Context, name string) (bridge.ConsentState, bool, error) {
	var rec mountRecord
	err := j.db.NewSelect().Model(&rec).Where("name = ?", name).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return bridge.ConsentUnknown, false, nil
		}

		return bridge.ConsentUnknown, false, err
	}

	return parseConsent(rec.Consent), true, nil
}

// RecordMount upserts a mount's principal and consent state.
func (j *Journal) RecordMount(ctx context.Context, runID, name, principal string, state bridge.ConsentState) error {
	rec := &mountRecord{
		Name:      name,
		RunID:     runID,
		Principal: principal,
		Consent:   state.String(),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := j.db.NewInsert().Model(rec).
		On("CONFLICT (name) DO UPDATE").
		Set("run_id = EXCLUDED.run_id").
		Set("principal = EXCLUDED.principal").
		Set("consent = EXCLUDED.consent").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	return err
}

// TableRegistered reports whether the table was registered by an
// earlier run.
func (j *Journal) TableRegistered(ctx context.Context, qualifiedName string) (bool, error) {
	var rec tableRecord
	err := j.db.NewSelect().Model(&rec).Where("qualified_name = ?", qualifiedName).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}

		return false, err
	}

	return rec.Registered, nil
}

// RecordTable upserts a successful registration.
func (j *Journal) RecordTable(ctx context.Context, mount string, mode bridge.TableMode, desc warehouse.TableDescriptor) error {
	rec := &tableRecord{
		QualifiedName:    desc.QualifiedName,
		Mount:            mount,
		Mode:             string(mode),
		MetadataLocation: sql.NullString{String: desc.MetadataLocation, Valid: desc.MetadataLocation != ""},
		Registered:       true,
		UpdatedAt:        time.Now().UTC(),
	}

	return j.upsertTable(ctx, rec)
}

// RecordTableError upserts a failed registration attempt.
func (j *Journal) RecordTableError(ctx context.Context, mount string, mode bridge.TableMode, qualifiedName string, cause error) error {
	rec := &tableRecord{
		QualifiedName: qualifiedName,
		Mount:         mount,
		Mode:          string(mode),
		LastError:     sql.NullString{String: cause.Error(), Valid: true},
		UpdatedAt:     time.Now().UTC(),
	}

	return j.upsertTable(ctx, rec)
}

// RecordValidation marks a registered table as validated or not.
func (j *Journal) RecordValidation(ctx context.Context, qualifiedName string, ok bool) error {
	_, err := j.db.NewUpdate().Model((*tableRecord)(nil)).
		Set("validated = ?", ok).
		Set("updated_at = ?", time.Now().UTC()).
		Where("qualified_name = ?", qualifiedName).
		Exec(ctx)

	return err
}

func (j *Journal) upsertTable(ctx context.Context, rec *tableRecord) error {
	_, err := j.db.NewInsert().Model(rec).
		On("CONFLICT (qualified_name) DO UPDATE").
		Set("mount = EXCLUDED.mount").
		Set("mode = EXCLUDED.mode").
		Set("metadata_location = EXCLUDED.metadata_location").
		Set("registered = EXCLUDED.registered").
		Set("last_error = EXCLUDED.last_error").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	return err
}

func parseConsent(s string) bridge.ConsentState {
	switch s {
	case bridge.ConsentPending.String():
		return bridge.ConsentPending
	case bridge.ConsentGranted.String():
		return bridge.ConsentGranted
	case bridge.ConsentDenied.String():
		return bridge.ConsentDenied
	default:
		return bridge.ConsentUnknown
	}
}
