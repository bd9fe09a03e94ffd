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

// Package validate runs smoke queries against freshly registered
// tables: a count and a bounded sample. Surprising counts are
// warnings; only failing queries fail a table, and one table's failure
// never stops the others.
package validate

import (
	"context"
	"fmt"
	"log/slog"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
)

// Querier is the slice of the warehouse the validator needs.
type Querier interface {
	CountRows(ctx context.Context, qualifiedName string) (int64, error)
	SampleRows(ctx context.Context, qualifiedName string, limit int) ([]map[string]any, error)
}

// Result is the outcome of validating one table.
type Result struct {
	Table      string
	Count      int64
	SampleSize int
	Warnings   []string
	Err        error
}

// OK reports whether both queries succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Validator validates registered tables.
type Validator struct {
	q      Querier
	limit  int
	logger *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithSampleLimit bounds the sample query.
func WithSampleLimit(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.limit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// New builds a Validator.
func New(q Querier, opts ...Option) *Validator {
	v := &Validator{q: q, limit: 10, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Table validates a single registered table.
func (v *Validator) Table(ctx context.Context, spec bridge.TableSpec) Result {
	res := Result{Table: spec.QualifiedName}

	count, err := v.q.CountRows(ctx, spec.QualifiedName)
	if err != nil {
		res.Err = fmt.Errorf("count query: %w", err)
		v.logger.Error("validation failed", "table", res.Table, "error", res.Err)

		return res
	}
	res.Count = count

	// The orchestrator does not know the true row count; a mismatch
	// against a configured expectation is worth flagging, nothing more.
	if spec.ExpectedRows > 0 && count != spec.ExpectedRows {
		w := fmt.Sprintf("count %d differs from expected %d", count, spec.ExpectedRows)
		res.Warnings = append(res.Warnings, w)
		v.logger.Warn("unexpected row count",
			"table", res.Table, "count", count, "expected", spec.ExpectedRows)
	}

	rows, err := v.q.SampleRows(ctx, spec.QualifiedName, v.limit)
	if err != nil {
		res.Err = fmt.Errorf("sample query: %w", err)
		v.logger.Error("validation failed", "table", res.Table, "error", res.Err)

		return res
	}
	res.SampleSize = len(rows)

	v.logger.Info("table validated",
		"table", res.Table, "count", res.Count, "sampled", res.SampleSize)

	return res
}

// All validates every spec, never halting on individual failures.
func (v *Validator) All(ctx context.Context, specs []bridge.TableSpec) []Result {
	out := make([]Result, 0, len(specs))
	for _, spec := range specs {
		out = append(out, v.Table(ctx, spec))
	}

	return out
}
