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

package validate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/internal"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/validate"
)

func TestTableOK(t *testing.T) {
	wh := &internal.MockWarehouse{}
	wh.On("CountRows", mock.Anything, "db.sch.users").Return(int64(42), nil).Once()
	wh.On("SampleRows", mock.Anything, "db.sch.users", 10).
		Return([]map[string]any{{"id": 1}, {"id": 2}}, nil).Once()

	res := validate.New(wh).Table(context.Background(), bridge.TableSpec{QualifiedName: "db.sch.users"})
	require.True(t, res.OK())
	assert.Equal(t, int64(42), res.Count)
	assert.Equal(t, 2, res.SampleSize)
	assert.Empty(t, res.Warnings)
}

func TestTableCountMismatchWarnsOnly(t *testing.T) {
	wh := &internal.MockWarehouse{}
	wh.On("CountRows", mock.Anything, "db.sch.users").Return(int64(41), nil).Once()
	wh.On("SampleRows", mock.Anything, "db.sch.users", 10).
		Return([]map[string]any{}, nil).Once()

	res := validate.New(wh).Table(context.Background(), bridge.TableSpec{
		QualifiedName: "db.sch.users",
		ExpectedRows:  42,
	})
	require.True(t, res.OK(), "a surprising count is a warning, not a failure")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "differs from expected 42")
}

func TestTableCountFailure(t *testing.T) {
	wh := &internal.MockWarehouse{}
	wh.On("CountRows", mock.Anything, "db.sch.users").
		Return(int64(0), errors.New("table suspended")).Once()

	res := validate.New(wh).Table(context.Background(), bridge.TableSpec{QualifiedName: "db.sch.users"})
	require.False(t, res.OK())
	assert.ErrorContains(t, res.Err, "count query")
	wh.AssertNotCalled(t, "SampleRows", mock.Anything, mock.Anything, mock.Anything)
}

func TestAllIsolatesFailures(t *testing.T) {
	wh := &internal.MockWarehouse{}
	wh.On("CountRows", mock.Anything, "db.sch.bad").
		Return(int64(0), errors.New("boom")).Once()
	wh.On("CountRows", mock.Anything, "db.sch.good").Return(int64(7), nil).Once()
	wh.On("SampleRows", mock.Anything, "db.sch.good", 5).
		Return([]map[string]any{{"id": 1}}, nil).Once()

	results := validate.New(wh, validate.WithSampleLimit(5)).All(context.Background(), []bridge.TableSpec{
		{QualifiedName: "db.sch.bad"},
		{QualifiedName: "db.sch.good"},
	})

	require.Len(t, results, 2)
	assert.False(t, results[0].OK())
	assert.True(t, results[1].OK())
	assert.Equal(t, int64(7), results[1].Count)
}
