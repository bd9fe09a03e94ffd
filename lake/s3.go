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

package lake

import (
	"context"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gocloud.dev/blob"
	"gocloud.dev/blob/s3blob"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
)

// Constants for S3 configuration options.
const (
	S3Region          = "s3.region"
	S3AccessKeyID     = "s3.access-key-id"
	S3SecretAccessKey = "s3.secret-access-key"
	S3SessionToken    = "s3.session-token"
	S3Endpoint        = "s3.endpoint"
	S3ForcePathStyle  = "s3.force-path-style"
)

func init() {
	Register("s3", OpenerFunc(openS3Bucket))
}

func loadAwsConfig(ctx context.Context, props bridge.Properties) (aws.Config, error) {
	if cfg := AwsConfigFromContext(ctx); cfg != nil {
		return *cfg, nil
	}

	var optFns []func(*awsconfig.LoadOptions) error
	if region := props[S3Region]; region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	if key := props[S3AccessKeyID]; key != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				key, props[S3SecretAccessKey], props[S3SessionToken])))
	}

	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}

func openS3Bucket(ctx context.Context, parsed *url.URL, props bridge.Properties) (*blob.Bucket, string, error) {
	cfg, err := loadAwsConfig(ctx, props)
	if err != nil {
		return nil, "", err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint := props[S3Endpoint]; endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = props.GetBool(S3ForcePathStyle, false)
	})

	bucket, err := s3blob.OpenBucketV2(ctx, client, parsed.Host, nil)
	if err != nil {
		return nil, "", err
	}

	return bucket, strings.TrimPrefix(parsed.Path, "/"), nil
}
