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

// Package config loads the declarative run configuration: the tenant
// and workspace being bridged, the warehouse connection, the mounts to
// register and the tables to create on top of them. Every component
// receives its slice of this configuration explicitly.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
)

const (
	cfgFile = ".onelake-bridge.yaml"

	defaultMaxWorkers      = 5
	defaultPollInterval    = 15 * time.Second
	defaultMaxPollInterval = 2 * time.Minute
	defaultConsentDeadline = 30 * time.Minute
	defaultLocateAttempts  = 3
	defaultSampleLimit     = 10
)

// Warehouse holds the Snowflake connection settings. The DSN is a
// gosnowflake connection string; Database and Schema qualify table
// names that are not already fully qualified.
type Warehouse struct {
	DSN      string `yaml:"dsn"`
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
}

// Workspace identifies the Fabric workspace the consent resolver polls.
type Workspace struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	TenantID string `yaml:"tenant-id"`
	// Endpoint overrides the access-control API base URL, mainly for tests.
	Endpoint string `yaml:"endpoint"`
}

// Journal configures the optional run journal used to resume
// interrupted runs. Dialect uses the usual names: sqlite, postgres,
// mysql, mssql, oracle.
type Journal struct {
	Enabled bool   `yaml:"enabled"`
	Dialect string `yaml:"dialect"`
	DSN     string `yaml:"dsn"`
}

// Consent holds the polling knobs of the consent resolver.
type Consent struct {
	PollInterval    time.Duration `yaml:"poll-interval"`
	MaxPollInterval time.Duration `yaml:"max-poll-interval"`
	Deadline        time.Duration `yaml:"deadline"`
}

// Config is the root of the run configuration.
type Config struct {
	Warehouse  Warehouse          `yaml:"warehouse"`
	Workspace  Workspace          `yaml:"workspace"`
	Journal    Journal            `yaml:"journal"`
	Consent    Consent            `yaml:"consent"`
	Mounts     []bridge.MountSpec `yaml:"mounts"`
	Tables     []bridge.TableSpec `yaml:"tables"`
	Properties bridge.Properties  `yaml:"properties"`

	MaxWorkers     int `yaml:"max-workers"`
	LocateAttempts int `yaml:"locate-attempts"`
	SampleLimit    int `yaml:"sample-limit"`
}

// Load reads and parses the configuration at path. An empty path falls
// back to ONELAKE_BRIDGE_HOME (or the user home directory) joined with
// the default file name.
func Load(path string) (*Config, error) {
	if path == "" {
		dir := os.Getenv("ONELAKE_BRIDGE_HOME")
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("resolving config path: %w", err)
			}
			dir = home
		}
		path = filepath.Join(dir, cfgFile)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}

	return Parse(raw)
}

// Parse decodes raw YAML, applies defaults and validates the result.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	cfg.qualifyTables()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = defaultMaxWorkers
	}
	if c.LocateAttempts <= 0 {
		c.LocateAttempts = defaultLocateAttempts
	}
	if c.SampleLimit <= 0 {
		c.SampleLimit = defaultSampleLimit
	}
	if c.Consent.PollInterval <= 0 {
		c.Consent.PollInterval = defaultPollInterval
	}
	if c.Consent.MaxPollInterval <= 0 {
		c.Consent.MaxPollInterval = defaultMaxPollInterval
	}
	if c.Consent.Deadline <= 0 {
		c.Consent.Deadline = defaultConsentDeadline
	}
	if c.Journal.Enabled && c.Journal.Dialect == "" {
		c.Journal.Dialect = "sqlite"
	}
	if c.Properties == nil {
		c.Properties = bridge.Properties{}
	}

	// Mounts inherit the workspace tenant unless pinned explicitly.
	for i := range c.Mounts {
		if c.Mounts[i].TenantID == "" {
			c.Mounts[i].TenantID = c.Workspace.TenantID
		}
	}
}

// qualifyTables completes table names from the warehouse database and
// schema. A bare name gets both, a schema-qualified name gets the
// database; names that already carry two dots are left alone.
func (c *Config) qualifyTables() {
	for i := range c.Tables {
		name := c.Tables[i].QualifiedName
		switch strings.Count(name, ".") {
		case 0:
			if c.Warehouse.Database != "" && c.Warehouse.Schema != "" {
				c.Tables[i].QualifiedName = c.Warehouse.Database + "." + c.Warehouse.Schema + "." + name
			}
		case 1:
			if c.Warehouse.Database != "" {
				c.Tables[i].QualifiedName = c.Warehouse.Database + "." + name
			}
		}
	}
}

// Validate checks cross references between tables and mounts. Mount
// URL schemes are validated later by the volume registrar so that the
// failure carries the provider-rejection semantics.
func (c *Config) Validate() error {
	if c.Warehouse.DSN == "" {
		return errors.New("config: warehouse dsn is required")
	}
	if c.Workspace.ID == "" && c.Workspace.Name == "" {
		return errors.New("config: workspace id or name is required")
	}

	mounts := make(map[string]struct{}, len(c.Mounts))
	for _, m := range c.Mounts {
		if _, dup := mounts[m.Name]; dup {
			return fmt.Errorf("config: duplicate mount %q", m.Name)
		}
		mounts[m.Name] = struct{}{}
	}

	for _, t := range c.Tables {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if _, ok := mounts[t.MountRef]; !ok {
			return fmt.Errorf("config: table %q references unknown mount %q",
				t.QualifiedName, t.MountRef)
		}
	}

	return nil
}

// Mount returns the mount spec with the given name.
func (c *Config) Mount(name string) (bridge.MountSpec, bool) {
	for _, m := range c.Mounts {
		if m.Name == name {
			return m, true
		}
	}

	return bridge.MountSpec{}, false
}

// TablesFor returns the table specs registered on the named mount.
func (c *Config) TablesFor(mount string) []bridge.TableSpec {
	var out []bridge.TableSpec
	for _, t := range c.Tables {
		if t.MountRef == mount {
			out = append(out, t)
		}
	}

	return out
}
