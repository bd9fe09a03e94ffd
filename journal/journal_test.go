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

package journal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/journal"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/warehouse"
)

type JournalTestSuite struct {
	suite.Suite

	ctx context.Context
	jr  *journal.Journal
}

func (s *JournalTestSuite) SetupTest() {
	s.ctx = context.Background()

	jr, err := journal.Open("sqlite", "file::memory:?cache=shared")
	s.Require().NoError(err)
	s.Require().NoError(jr.Init(s.ctx))
	s.jr = jr
}

func (s *JournalTestSuite) TearDownTest() {
	s.Require().NoError(s.jr.Close())
}

func (s *JournalTestSuite) TestMountConsentRoundTrip() {
	state, ok, err := s.jr.MountConsent(s.ctx, "vol1")
	s.Require().NoError(err)
	s.False(ok)
	s.Equal(bridge.ConsentUnknown, state)

	s.Require().NoError(s.jr.RecordMount(s.ctx, "run-1", "vol1", "SNOWFLAKE_SP", bridge.ConsentPending))

	state, ok, err = s.jr.MountConsent(s.ctx, "vol1")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(bridge.ConsentPending, state)

	// A later run upserts the same mount to its terminal state.
	s.Require().NoError(s.jr.RecordMount(s.ctx, "run-2", "vol1", "SNOWFLAKE_SP", bridge.ConsentGranted))

	state, ok, err = s.jr.MountConsent(s.ctx, "vol1")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(bridge.ConsentGranted, state)
}

func (s *JournalTestSuite) TestTableRegistrationRoundTrip() {
	registered, err := s.jr.TableRegistered(s.ctx, "db.sch.users")
	s.Require().NoError(err)
	s.False(registered)

	s.Require().NoError(s.jr.RecordTable(s.ctx, "vol1", bridge.WritePath, warehouse.TableDescriptor{
		QualifiedName:    "db.sch.users",
		MetadataLocation: "azure://host/ws/users/metadata/1.metadata.json",
	}))

	registered, err = s.jr.TableRegistered(s.ctx, "db.sch.users")
	s.Require().NoError(err)
	s.True(registered)

	s.Require().NoError(s.jr.RecordValidation(s.ctx, "db.sch.users", true))
}

func (s *JournalTestSuite) TestTableErrorDoesNotMarkRegistered() {
	s.Require().NoError(s.jr.RecordTableError(s.ctx, "vol1", bridge.ReadPath,
		"db.sch.events", errors.New("metadata file not found")))

	registered, err := s.jr.TableRegistered(s.ctx, "db.sch.events")
	s.Require().NoError(err)
	s.False(registered)

	// A subsequent success overwrites the failure record.
	s.Require().NoError(s.jr.RecordTable(s.ctx, "vol1", bridge.ReadPath, warehouse.TableDescriptor{
		QualifiedName: "db.sch.events",
	}))

	registered, err = s.jr.TableRegistered(s.ctx, "db.sch.events")
	s.Require().NoError(err)
	s.True(registered)
}

func (s *JournalTestSuite) TestUnsupportedDialect() {
	_, err := journal.Open("dbase", "whatever")
	s.Error(err)
}

func TestJournal(t *testing.T) {
	suite.Run(t, new(JournalTestSuite))
}
