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
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"

	"gocloud.dev/blob"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
)

const metadataDir = "metadata"

// Iceberg metadata files are named <generation>.metadata.json, with
// writers optionally appending a per-table suffix after the generation
// ("00001-<uuid>.metadata.json") or prepending a "v".
var metadataFileRe = regexp.MustCompile(`^v?(\d+)(-[^/]*)?\.metadata\.json$`)

// ValidateTableRoot rejects paths that point inside a table instead of
// at its root. Building a shortcut on top of data/ or metadata/ is a
// common mistake the original runbook warns about.
func ValidateTableRoot(tablePath string) error {
	trimmed := strings.TrimSuffix(tablePath, "/")
	base := path.Base(trimmed)
	if base == metadataDir || base == "data" {
		return fmt.Errorf("%q is not a table root: drop the trailing %s/ component", tablePath, base)
	}

	return nil
}

// ListSnapshots lists the metadata directory under tablePath (a key
// prefix within bucket) and returns the parsed snapshots in listing
// order. An empty or missing directory yields ErrNoMetadataFound; a
// failed listing or an unparsable metadata file name yields
// ErrListingError.
func ListSnapshots(ctx context.Context, bucket *blob.Bucket, tablePath string) ([]bridge.MetadataSnapshot, error) {
	if err := ValidateTableRoot(tablePath); err != nil {
		return nil, fmt.Errorf("%w: %s", bridge.ErrListingError, err)
	}

	prefix := strings.TrimSuffix(tablePath, "/") + "/" + metadataDir + "/"
	iter := bucket.List(&blob.ListOptions{Prefix: prefix})

	var snaps []bridge.MetadataSnapshot
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: listing %q: %s", bridge.ErrListingError, prefix, err)
		}

		name := path.Base(obj.Key)
		if !strings.HasSuffix(name, ".metadata.json") {
			// manifest lists, version hints and the like live here too
			continue
		}

		m := metadataFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("%w: malformed metadata file name %q under %q",
				bridge.ErrListingError, name, prefix)
		}

		gen, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata generation in %q: %s",
				bridge.ErrListingError, name, err)
		}

		snaps = append(snaps, bridge.MetadataSnapshot{
			TablePath:  tablePath,
			Generation: gen,
			FilePath:   obj.Key,
		})
	}

	if len(snaps) == 0 {
		return nil, fmt.Errorf("%w: %s", bridge.ErrNoMetadataFound, prefix)
	}

	return snaps, nil
}

// LatestSnapshot returns the authoritative snapshot for the table: the
// one with the highest generation number, compared numerically. Two
// files sharing a generation are ordered by lexicographic file name,
// greatest last, as a deterministic tie-break.
func LatestSnapshot(ctx context.Context, bucket *blob.Bucket, tablePath string) (bridge.MetadataSnapshot, error) {
	snaps, err := ListSnapshots(ctx, bucket, tablePath)
	if err != nil {
		return bridge.MetadataSnapshot{}, err
	}

	return PickLatest(snaps), nil
}

// PickLatest selects the highest-generation snapshot, breaking ties by
// lexicographic file path. The slice must be non-empty.
func PickLatest(snaps []bridge.MetadataSnapshot) bridge.MetadataSnapshot {
	latest := snaps[0]
	for _, s := range snaps[1:] {
		if s.Generation > latest.Generation ||
			(s.Generation == latest.Generation && s.FilePath > latest.FilePath) {
			latest = s
		}
	}

	return latest
}

// HasDuplicateGenerations reports whether two snapshots share a
// generation number. A single table lineage numbers its metadata
// monotonically, so a duplicate means files from more than one table
// incarnation coexist at the location.
func HasDuplicateGenerations(snaps []bridge.MetadataSnapshot) bool {
	seen := make(map[int64]struct{}, len(snaps))
	for _, s := range snaps {
		if _, dup := seen[s.Generation]; dup {
			return true
		}
		seen[s.Generation] = struct{}{}
	}

	return false
}
