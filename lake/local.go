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
	"path"
	"strings"
	"sync"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
)

func init() {
	Register("file", OpenerFunc(openFileBucket))
	Register("mem", OpenerFunc(openMemBucket))
}

func openFileBucket(_ context.Context, parsed *url.URL, _ bridge.Properties) (*blob.Bucket, string, error) {
	bucket, err := fileblob.OpenBucket("/", nil)
	if err != nil {
		return nil, "", err
	}

	prefix := strings.TrimPrefix(path.Join(parsed.Host, parsed.Path), "/")

	return bucket, prefix, nil
}

// mem buckets are shared per name so that a test writer and the code
// under test observe the same contents.
var (
	memMutex   sync.Mutex
	memBuckets = map[string]*blob.Bucket{}
)

func openMemBucket(_ context.Context, parsed *url.URL, _ bridge.Properties) (*blob.Bucket, string, error) {
	memMutex.Lock()
	defer memMutex.Unlock()

	bucket, ok := memBuckets[parsed.Host]
	if !ok {
		bucket = memblob.OpenBucket(nil)
		memBuckets[parsed.Host] = bucket
	}

	return bucket, strings.TrimPrefix(parsed.Path, "/"), nil
}
