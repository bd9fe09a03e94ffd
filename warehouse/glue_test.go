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

package warehouse

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGlue struct {
	err  error
	last *glue.GetDatabaseInput
}

func (f *fakeGlue) GetDatabase(_ context.Context, params *glue.GetDatabaseInput, _ ...func(*glue.Options)) (*glue.GetDatabaseOutput, error) {
	f.last = params
	if f.err != nil {
		return nil, f.err
	}

	return &glue.GetDatabaseOutput{
		Database: &types.Database{Name: params.Name},
	}, nil
}

func TestVerifyGlueIntegration(t *testing.T) {
	api := &fakeGlue{}
	err := VerifyGlueIntegration(context.Background(), api, CatalogIntegration{
		Source:        "GLUE",
		GlueDatabase:  "analytics",
		GlueCatalogID: "123456789012",
	})
	require.NoError(t, err)
	require.NotNil(t, api.last)
	assert.Equal(t, "analytics", aws.ToString(api.last.Name))
	assert.Equal(t, "123456789012", aws.ToString(api.last.CatalogId))
}

func TestVerifyGlueIntegrationNotFound(t *testing.T) {
	api := &fakeGlue{err: &types.EntityNotFoundException{Message: aws.String("no such database")}}
	err := VerifyGlueIntegration(context.Background(), api, CatalogIntegration{
		Source:       "GLUE",
		GlueDatabase: "missing",
	})
	require.ErrorIs(t, err, ErrGlueDatabaseNotFound)
}

func TestVerifyGlueIntegrationOtherError(t *testing.T) {
	api := &fakeGlue{err: errors.New("dial tcp: timeout")}
	err := VerifyGlueIntegration(context.Background(), api, CatalogIntegration{
		Source:       "GLUE",
		GlueDatabase: "analytics",
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrGlueDatabaseNotFound)
}

func TestVerifyGlueIntegrationSkipsNonGlue(t *testing.T) {
	api := &fakeGlue{err: errors.New("should not be called")}
	err := VerifyGlueIntegration(context.Background(), api, CatalogIntegration{Source: "OBJECT_STORE"})
	require.NoError(t, err)
	assert.Nil(t, api.last)
}
