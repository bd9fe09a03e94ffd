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

	"cloud.google.com/go/storage"
	"gocloud.dev/blob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/gcp"
	"google.golang.org/api/option"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
)

// Constants for GCS configuration options.
const (
	GCSEndpoint   = "gcs.endpoint"
	GCSKeyPath    = "gcs.keypath"
	GCSJSONKey    = "gcs.jsonkey"
	GCSUseJSONAPI = "gcs.use-json-api"
)

func init() {
	Register("gs", OpenerFunc(openGCSBucket))
	Register("gcs", OpenerFunc(openGCSBucket))
}

func parseGCSOptions(props bridge.Properties) *gcsblob.Options {
	var o []option.ClientOption
	if endpoint := props[GCSEndpoint]; endpoint != "" {
		o = append(o, option.WithEndpoint(endpoint))
	}
	if key := props[GCSJSONKey]; key != "" {
		o = append(o, option.WithCredentialsJSON([]byte(key)))
	}
	if path := props[GCSKeyPath]; path != "" {
		o = append(o, option.WithCredentialsFile(path))
	}
	if props.GetBool(GCSUseJSONAPI, false) {
		o = append(o, storage.WithJSONReads())
	}

	return &gcsblob.Options{ClientOptions: o}
}

func openGCSBucket(ctx context.Context, parsed *url.URL, props bridge.Properties) (*blob.Bucket, string, error) {
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, "", err
	}

	client, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, "", err
	}

	bucket, err := gcsblob.OpenBucket(ctx, client, parsed.Host, parseGCSOptions(props))
	if err != nil {
		return nil, "", err
	}

	return bucket, strings.TrimPrefix(parsed.Path, "/"), nil
}
