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
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/config"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/orchestrator"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/validate"
)

// Output renders command results in either text or json form.
type Output interface {
	Plan(cfg *config.Config)
	Report(r *orchestrator.Report)
	Snapshot(snap bridge.MetadataSnapshot)
	Consent(mount string, principal bridge.ServicePrincipalRef)
	Validations(results []validate.Result)
	Text(val string)
	Error(err error)
}

type text struct{}

func (text) Plan(cfg *config.Config) {
	mountData := pterm.TableData{{"mount", "provider", "base url", "read-only"}}
	for _, m := range cfg.Mounts {
		mountData = append(mountData, []string{
			m.Name, string(m.Provider), m.BaseURL, strconv.FormatBool(m.ReadOnly),
		})
	}
	pterm.DefaultTable.
		WithHasHeader(true).
		WithHeaderRowSeparator("-").
		WithData(mountData).Render()

	tableData := pterm.TableData{{"table", "mount", "mode", "location"}}
	for _, t := range cfg.Tables {
		loc := t.BaseLocation
		if t.Mode == bridge.ReadPath && t.MetadataPath != "" {
			loc = t.MetadataPath
		}
		tableData = append(tableData, []string{
			t.QualifiedName, t.MountRef, string(t.Mode), loc,
		})
	}
	pterm.DefaultTable.
		WithHasHeader(true).
		WithHeaderRowSeparator("-").
		WithData(tableData).Render()
}

func (text) Report(r *orchestrator.Report) {
	pterm.Println("Run " + r.RunID)

	mountData := pterm.TableData{{"mount", "principal", "consent", "status"}}
	for _, m := range r.Mounts {
		status := "ok"
		if m.Err != nil {
			status = m.Err.Error()
		}
		mountData = append(mountData, []string{
			m.Mount, m.Principal.DisplayName, m.Principal.ConsentState.String(), status,
		})
	}
	pterm.DefaultTable.
		WithHasHeader(true).
		WithHeaderRowSeparator("-").
		WithData(mountData).Render()

	tableData := pterm.TableData{{"table", "mount", "count", "warnings", "status"}}
	for _, t := range r.Tables {
		count, warnings := "-", ""
		if t.Validation != nil {
			count = strconv.FormatInt(t.Validation.Count, 10)
			warnings = strings.Join(t.Validation.Warnings, "; ")
		}
		status := "ok"
		switch {
		case t.Err != nil:
			status = t.Err.Error()
		case t.Validation != nil && !t.Validation.OK():
			status = t.Validation.Err.Error()
		}
		tableData = append(tableData, []string{t.Table, t.Mount, count, warnings, status})
	}
	pterm.DefaultTable.
		WithHasHeader(true).
		WithHeaderRowSeparator("-").
		WithData(tableData).Render()
}

func (text) Snapshot(snap bridge.MetadataSnapshot) {
	pterm.DefaultTable.
		WithData(pterm.TableData{
			{"Table path", snap.TablePath},
			{"Generation", strconv.FormatInt(snap.Generation, 10)},
			{"Metadata file", snap.FilePath},
		}).Render()
}

func (text) Consent(mount string, principal bridge.ServicePrincipalRef) {
	pterm.DefaultTable.
		WithData(pterm.TableData{
			{"Mount", mount},
			{"Principal", principal.DisplayName},
			{"Consent", principal.ConsentState.String()},
		}).Render()
}

func (text) Validations(results []validate.Result) {
	data := pterm.TableData{{"table", "count", "sampled", "warnings", "status"}}
	for _, res := range results {
		status := "ok"
		if res.Err != nil {
			status = res.Err.Error()
		}
		data = append(data, []string{
			res.Table,
			strconv.FormatInt(res.Count, 10),
			strconv.Itoa(res.SampleSize),
			strings.Join(res.Warnings, "; "),
			status,
		})
	}
	pterm.DefaultTable.
		WithHasHeader(true).
		WithHeaderRowSeparator("-").
		WithData(data).Render()
}

func (text) Text(val string) {
	pterm.Println(val)
}

func (text) Error(err error) {
	pterm.Error.Println(err.Error())
}

type jsonOutput struct{}

func (jsonOutput) render(v any) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(raw))
}

func (j jsonOutput) Plan(cfg *config.Config) {
	j.render(map[string]any{"mounts": cfg.Mounts, "tables": cfg.Tables})
}

func (j jsonOutput) Report(r *orchestrator.Report) {
	j.render(r)
}

func (j jsonOutput) Snapshot(snap bridge.MetadataSnapshot) {
	j.render(snap)
}

func (j jsonOutput) Consent(mount string, principal bridge.ServicePrincipalRef) {
	j.render(map[string]any{
		"mount":     mount,
		"principal": principal.DisplayName,
		"consent":   principal.ConsentState.String(),
	})
}

func (j jsonOutput) Validations(results []validate.Result) {
	j.render(results)
}

func (j jsonOutput) Text(val string) {
	j.render(map[string]string{"message": val})
}

func (j jsonOutput) Error(err error) {
	j.render(map[string]string{"error": err.Error()})
}
