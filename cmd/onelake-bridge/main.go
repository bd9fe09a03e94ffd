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

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/docopt/docopt-go"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/config"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/consent"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/journal"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/lake"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/orchestrator"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/validate"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/volume"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/warehouse"
)

const usage = `onelake-bridge.

Usage:
  onelake-bridge apply [options]
  onelake-bridge plan [options]
  onelake-bridge locate [options] TABLE_PATH
  onelake-bridge consent [options] MOUNT
  onelake-bridge validate [options]
  onelake-bridge integration [options] NAME
  onelake-bridge -h | --help | --version

Commands:
  apply        Register volumes and tables, wait for consent, validate.
  plan         Show what a run would do without touching anything.
  locate       Resolve the latest metadata snapshot of a table path.
  consent      Register the mount's volume and wait for consent only.
  validate     Run the validation queries against configured tables.
  integration  Create a catalog integration (verifies GLUE sources).

Arguments:
  TABLE_PATH   storage location of a table root, e.g. azure://host/ws/lh.Lakehouse/Files/users
  MOUNT        name of a configured mount
  NAME         name of the catalog integration to create

Options:
  -h --help           show this help message and exit
  --config TEXT       path to the configuration file
  --output TYPE       output type (json/text) [default: text]
  --deadline DUR      override the consent deadline, e.g. 10m
  --verbose           enable debug logging`

type cliConfig struct {
	Apply       bool `docopt:"apply"`
	Plan        bool `docopt:"plan"`
	Locate      bool `docopt:"locate"`
	Consent     bool `docopt:"consent"`
	Validate    bool `docopt:"validate"`
	Integration bool `docopt:"integration"`

	TablePath string `docopt:"TABLE_PATH"`
	Mount     string `docopt:"MOUNT"`
	Name      string `docopt:"NAME"`

	ConfigPath string `docopt:"--config"`
	OutputType string `docopt:"--output"`
	Deadline   string `docopt:"--deadline"`
	Verbose    bool   `docopt:"--verbose"`
}

func main() {
	args, err := docopt.ParseArgs(usage, os.Args[1:], bridge.Version())
	if err != nil {
		log.Fatal(err)
	}

	cli := cliConfig{}
	if err := args.Bind(&cli); err != nil {
		log.Fatal(err)
	}

	var output Output
	switch cli.OutputType {
	case "text":
		output = text{}
	case "json":
		output = jsonOutput{}
	default:
		log.Fatal("output type must be either `text` or `json`")
	}

	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cli.ConfigPath)
	if err != nil {
		output.Error(err)
		os.Exit(1)
	}
	if cli.Deadline != "" {
		d, err := time.ParseDuration(cli.Deadline)
		if err != nil {
			output.Error(fmt.Errorf("parsing --deadline: %w", err))
			os.Exit(1)
		}
		cfg.Consent.Deadline = d
	}

	ctx := context.Background()
	if err := run(ctx, cli, cfg, output, logger); err != nil {
		output.Error(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cli cliConfig, cfg *config.Config, output Output, logger *slog.Logger) error {
	switch {
	case cli.Plan:
		output.Plan(cfg)

		return nil
	case cli.Locate:
		return runLocate(ctx, cli.TablePath, cfg, output)
	}

	wh, err := warehouse.NewSnowflake(cfg.Warehouse.DSN, warehouse.WithLogger(logger))
	if err != nil {
		return err
	}
	defer wh.Close()

	switch {
	case cli.Integration:
		return runIntegration(ctx, cli.Name, cfg, wh, output)
	case cli.Validate:
		results := validate.New(wh,
			validate.WithSampleLimit(cfg.SampleLimit),
			validate.WithLogger(logger)).All(ctx, cfg.Tables)
		output.Validations(results)

		return nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return fmt.Errorf("acquiring azure credential: %w", err)
	}
	var accessOpts []lake.AccessOption
	if cfg.Workspace.Endpoint != "" {
		accessOpts = append(accessOpts, lake.WithAccessEndpoint(cfg.Workspace.Endpoint))
	}
	access := lake.NewAccessClient(cred, accessOpts...)

	switch {
	case cli.Consent:
		return runConsent(ctx, cli.Mount, cfg, wh, access, output, logger)
	case cli.Apply:
		return runApply(ctx, cfg, wh, access, output, logger)
	}

	return nil
}

func runApply(ctx context.Context, cfg *config.Config, wh warehouse.Warehouse, access consent.Poller, output Output, logger *slog.Logger) error {
	var opts []orchestrator.Option
	opts = append(opts, orchestrator.WithLogger(logger))

	if cfg.Journal.Enabled {
		jr, err := journal.Open(cfg.Journal.Dialect, cfg.Journal.DSN)
		if err != nil {
			return err
		}
		defer jr.Close()
		if err := jr.Init(ctx); err != nil {
			return err
		}
		opts = append(opts, orchestrator.WithJournal(jr))
	}

	report, err := orchestrator.New(cfg, wh, access, opts...).Run(ctx)
	if err != nil {
		return err
	}
	output.Report(report)

	if len(report.FailedTables()) > 0 {
		return fmt.Errorf("%d table(s) failed", len(report.FailedTables()))
	}

	return nil
}

func runLocate(ctx context.Context, tablePath string, cfg *config.Config, output Output) error {
	bucket, prefix, err := lake.OpenLocation(ctx, tablePath, cfg.Properties)
	if err != nil {
		return err
	}
	defer bucket.Close()

	snap, err := lake.LatestSnapshot(ctx, bucket, prefix)
	if err != nil {
		return err
	}
	output.Snapshot(snap)

	return nil
}

func runConsent(ctx context.Context, mountName string, cfg *config.Config, wh warehouse.Warehouse, access consent.Poller, output Output, logger *slog.Logger) error {
	spec, ok := cfg.Mount(mountName)
	if !ok {
		return fmt.Errorf("mount %q is not configured", mountName)
	}

	_, principal, err := volume.New(wh, volume.WithLogger(logger)).Ensure(ctx, spec)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, cfg.Consent.Deadline)
	defer cancel()

	resolver := consent.NewResolver(access,
		consent.WithInterval(cfg.Consent.PollInterval),
		consent.WithMaxInterval(cfg.Consent.MaxPollInterval),
		consent.WithLogger(logger))

	workspace := cfg.Workspace.ID
	if workspace == "" {
		workspace = cfg.Workspace.Name
	}
	if _, err := resolver.Resolve(cctx, workspace, &principal); err != nil {
		return err
	}
	output.Consent(mountName, principal)

	return nil
}

func runIntegration(ctx context.Context, name string, cfg *config.Config, wh warehouse.Warehouse, output Output) error {
	integ := warehouse.CatalogIntegration{
		Name:           name,
		Source:         cfg.Properties.Get("integration.source", "OBJECT_STORE"),
		TableFormat:    cfg.Properties.Get("integration.table-format", "ICEBERG"),
		Enabled:        true,
		GlueCatalogID:  cfg.Properties.Get("integration.glue-catalog-id", ""),
		GlueDatabase:   cfg.Properties.Get("integration.glue-database", ""),
		GlueRegion:     cfg.Properties.Get("integration.glue-region", ""),
		GlueAwsRoleARN: cfg.Properties.Get("integration.glue-role-arn", ""),
	}

	if integ.Source == "GLUE" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return err
		}
		if err := warehouse.VerifyGlueIntegration(ctx, warehouse.NewGlueClient(awsCfg), integ); err != nil {
			return err
		}
	}

	if err := wh.CreateCatalogIntegration(ctx, integ); err != nil {
		return err
	}
	output.Text(fmt.Sprintf("catalog integration %q created", name))

	return nil
}
