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

package bridge

import "errors"

var (
	// ErrProviderRejected is returned when a mount's base URL uses the
	// wrong scheme or names an unsupported storage provider. Surfaced
	// before any network call; requires a config fix, not a retry.
	ErrProviderRejected = errors.New("storage provider rejected")

	// ErrConsentTimeout is returned when the consent deadline elapses
	// while the principal is still pending. Recoverable by re-polling
	// with a fresh deadline once an admin has acted.
	ErrConsentTimeout = errors.New("consent not granted before deadline")

	// ErrSchemaConflict is returned when an incompatible table already
	// exists at the target. Never retried.
	ErrSchemaConflict = errors.New("incompatible table schema already registered")

	// ErrMultipleMetadataSets is returned when metadata files from more
	// than one table lineage coexist at a base location. The stale files
	// must be cleaned up out of band; the registrar never deletes them.
	ErrMultipleMetadataSets = errors.New("multiple metadata sets at base location")

	// ErrMetadataNotFound is returned when a previously resolved
	// metadata file path no longer exists, typically a race with a
	// concurrent writer on the source side. Retried a bounded number of
	// times after re-listing.
	ErrMetadataNotFound = errors.New("metadata file not found")

	// ErrNoMetadataFound is returned when a table's metadata directory
	// is empty or missing. Retryable: the source side may simply not
	// have committed yet.
	ErrNoMetadataFound = errors.New("no metadata files found")

	// ErrListingError is returned when a metadata listing fails or
	// yields entries that cannot be parsed. Non-retryable, surfaced
	// immediately.
	ErrListingError = errors.New("metadata listing failed")
)
