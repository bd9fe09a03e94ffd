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

// Package lake talks to the storage side of the bridge: it opens
// object-store buckets for the locations external volumes point at,
// discovers Iceberg metadata snapshots by listing, and polls the
// Fabric workspace access-control API.
//
// Bucket openers are registered per URL scheme, so the rest of the
// module never switches on providers directly.
package lake

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"sync"

	"gocloud.dev/blob"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
)

// Opener creates a bucket for a parsed location URL. It returns the
// bucket and the key prefix of the location within that bucket.
type Opener interface {
	Open(ctx context.Context, parsed *url.URL, props bridge.Properties) (*blob.Bucket, string, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(context.Context, *url.URL, bridge.Properties) (*blob.Bucket, string, error)

func (f OpenerFunc) Open(ctx context.Context, parsed *url.URL, props bridge.Properties) (*blob.Bucket, string, error) {
	return f(ctx, parsed, props)
}

type registry map[string]Opener

func (r registry) get(scheme string) (Opener, bool) {
	regMutex.Lock()
	defer regMutex.Unlock()
	o, ok := r[scheme]

	return o, ok
}

func (r registry) set(scheme string, o Opener) {
	regMutex.Lock()
	defer regMutex.Unlock()
	r[scheme] = o
}

func (r registry) remove(scheme string) {
	regMutex.Lock()
	defer regMutex.Unlock()
	delete(r, scheme)
}

func (r registry) keys() []string {
	regMutex.Lock()
	defer regMutex.Unlock()

	return slices.Sorted(maps.Keys(r))
}

var (
	regMutex        sync.Mutex
	defaultRegistry = registry{}
)

// Register adds an opener for the given URL scheme, replacing any
// existing registration.
func Register(scheme string, o Opener) {
	if o == nil {
		panic("lake: Register opener is nil")
	}
	defaultRegistry.set(scheme, o)
}

// Unregister removes the opener for the given scheme.
func Unregister(scheme string) {
	defaultRegistry.remove(scheme)
}

// RegisteredSchemes returns the sorted list of registered URL schemes.
func RegisteredSchemes() []string {
	return defaultRegistry.keys()
}

// OpenLocation opens the bucket backing location and returns it along
// with the key prefix of location inside the bucket. The scheme of the
// location selects the opener.
func OpenLocation(ctx context.Context, location string, props bridge.Properties) (*blob.Bucket, string, error) {
	parsed, err := url.Parse(location)
	if err != nil {
		return nil, "", fmt.Errorf("parsing location %q: %w", location, err)
	}

	o, ok := defaultRegistry.get(parsed.Scheme)
	if !ok {
		return nil, "", fmt.Errorf("no storage opener registered for scheme %q (have %s)",
			parsed.Scheme, strings.Join(RegisteredSchemes(), ", "))
	}

	return o.Open(ctx, parsed, props)
}

// splitContainerPath splits a URL path of the form /container/a/b into
// the container and the remaining key prefix.
func splitContainerPath(parsed *url.URL) (container, prefix string) {
	trimmed := strings.TrimPrefix(parsed.Path, "/")
	container, prefix, _ = strings.Cut(trimmed, "/")

	return container, prefix
}
