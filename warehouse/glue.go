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
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/aws/smithy-go"
)

// ErrGlueDatabaseNotFound is returned when a GLUE-source catalog
// integration references a database that does not exist.
var ErrGlueDatabaseNotFound = errors.New("glue database does not exist")

// GlueAPI is the subset of the Glue client the verifier needs.
type GlueAPI interface {
	GetDatabase(ctx context.Context, params *glue.GetDatabaseInput, optFns ...func(*glue.Options)) (*glue.GetDatabaseOutput, error)
}

// NewGlueClient builds a Glue client from an AWS config.
func NewGlueClient(cfg aws.Config) GlueAPI {
	return glue.NewFromConfig(cfg)
}

// VerifyGlueIntegration checks that the database a GLUE-source catalog
// integration points at actually exists before the integration is
// created. Non-GLUE integrations pass trivially.
func VerifyGlueIntegration(ctx context.Context, api GlueAPI, integ CatalogIntegration) error {
	if integ.Source != "GLUE" {
		return nil
	}

	input := &glue.GetDatabaseInput{Name: aws.String(integ.GlueDatabase)}
	if integ.GlueCatalogID != "" {
		input.CatalogId = aws.String(integ.GlueCatalogID)
	}

	_, err := api.GetDatabase(ctx, input)
	if err != nil {
		var notFound *types.EntityNotFoundException
		if errors.As(err, &notFound) {
			return fmt.Errorf("%w: %s", ErrGlueDatabaseNotFound, integ.GlueDatabase)
		}

		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("verifying glue database %q: %s: %s",
				integ.GlueDatabase, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}

		return fmt.Errorf("verifying glue database %q: %w", integ.GlueDatabase, err)
	}

	return nil
}
