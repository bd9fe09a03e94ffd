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

import (
	"maps"
	"strconv"
)

// Properties is a generic string map used to pass provider options
// (credentials, endpoints, tuning knobs) through the components
// without each one knowing every key.
type Properties map[string]string

// Get returns the value for key, or defVal when absent.
func (p Properties) Get(key, defVal string) string {
	if v, ok := p[key]; ok {
		return v
	}

	return defVal
}

// GetBool parses the value for key as a bool, returning defVal when
// absent or unparsable.
func (p Properties) GetBool(key string, defVal bool) bool {
	if v, ok := p[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}

	return defVal
}

// GetInt parses the value for key as an int, returning defVal when
// absent or unparsable.
func (p Properties) GetInt(key string, defVal int) int {
	if v, ok := p[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}

	return defVal
}

// Clone returns a shallow copy so callers can layer overrides without
// mutating shared configuration.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	maps.Copy(out, p)

	return out
}
