//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "pollbank/pkg/platform/audit"
	"pollbank/pkg/testutil/containers"
)

type PostgresAuditSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *Store
}

func TestPostgresAuditSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAuditSuite))
}

func (s *PostgresAuditSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = New(s.pg.DB)
}

func (s *PostgresAuditSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "audit_events"))
}

func (s *PostgresAuditSuite) TestAppendAndList() {
	ctx := context.Background()
	base := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.Append(ctx, audit.Event{
		ID: "evt-1", Timestamp: base, Action: string(audit.EventAccountSaved),
		ActorID: "U_2", ActorRole: "regional", Subject: "field_officer/PO_1",
	}))
	s.Require().NoError(s.store.Append(ctx, audit.Event{
		ID: "evt-2", Timestamp: base.Add(time.Minute), Action: string(audit.EventAccountVerified),
		ActorID: "U_2", ActorRole: "regional", Subject: "field_officer/PO_1", Decision: "verified",
	}))
	s.Require().NoError(s.store.Append(ctx, audit.Event{
		ID: "evt-3", Timestamp: base.Add(2 * time.Minute), Action: string(audit.EventUserLogin), ActorID: "U_1",
	}))

	byActor, err := s.store.ListByActor(ctx, "U_2")
	s.Require().NoError(err)
	s.Require().Len(byActor, 2)
	s.Equal("evt-2", byActor[0].ID)
	s.Equal(audit.CategoryCompliance, byActor[0].Category)

	bySubject, err := s.store.ListBySubject(ctx, "field_officer/PO_1")
	s.Require().NoError(err)
	s.Len(bySubject, 2)

	recent, err := s.store.ListRecent(ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Equal(audit.CategorySecurity, recent[0].Category)
}

func (s *PostgresAuditSuite) TestAppendIsIdempotent() {
	ctx := context.Background()
	event := audit.Event{ID: "evt-dup", Timestamp: time.Now().UTC(), Action: string(audit.EventBankCreated), ActorID: "U_1"}
	s.Require().NoError(s.store.Append(ctx, event))
	s.Require().NoError(s.store.Append(ctx, event))

	events, err := s.store.ListByActor(ctx, "U_1")
	s.Require().NoError(err)
	s.Len(events, 1)
}
