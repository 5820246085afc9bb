package lockout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "pollbank/pkg/domain-errors"
	audit "pollbank/pkg/platform/audit"
	"pollbank/pkg/platform/audit/publisher"
	auditmemory "pollbank/pkg/platform/audit/store/memory"
	"pollbank/pkg/requestcontext"
)

type LockoutSuite struct {
	suite.Suite
	now     time.Time
	ip      string
	store   *MemoryStore
	audit   *auditmemory.InMemoryStore
	service *Service
}

func TestLockoutSuite(t *testing.T) {
	suite.Run(t, new(LockoutSuite))
}

func (s *LockoutSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.ip = "10.0.0.1"
	s.store = NewMemoryStore()
	s.store.now = func() time.Time { return s.now }
	s.audit = auditmemory.NewInMemoryStore()

	svc, err := New(s.store,
		WithLimits(3, 10*time.Minute, 15*time.Minute),
		WithIdentifierLimit(6),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditEmitter(publisher.NewPublisher(s.audit)),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *LockoutSuite) ctx() context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	return requestcontext.WithClientIP(ctx, s.ip)
}

func (s *LockoutSuite) fail(kind, identifier string, n int) {
	for range n {
		s.Require().NoError(s.service.RecordFailure(s.ctx(), kind, identifier))
	}
}

func (s *LockoutSuite) TestLocksAfterBudgetIsSpent() {
	for range 2 {
		s.fail("personnel", "9000000001", 1)
		s.Require().NoError(s.service.Check(s.ctx(), "personnel", "9000000001"))
	}
	s.fail("personnel", "9000000001", 1)

	err := s.service.Check(s.ctx(), "personnel", "9000000001")
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Contains(err.Error(), "15 minute(s)")

	events, err := s.audit.ListAll(context.Background())
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventAuthLockout), events[0].Action)
	s.Equal(audit.CategorySecurity, events[0].Category)
	s.Equal(Key("personnel", "9000000001", "10.0.0.1"), events[0].Subject)
}

func (s *LockoutSuite) TestRotatingClientAddressStillLocks() {
	for i := range 6 {
		s.ip = fmt.Sprintf("203.0.113.%d", i+1)
		s.Require().NoError(s.service.Check(s.ctx(), "user", "admin"))
		s.fail("user", "admin", 1)
	}

	s.ip = "203.0.113.99"
	err := s.service.Check(s.ctx(), "user", "admin")
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.NoError(s.service.Check(s.ctx(), "user", "regional1"))
}

func (s *LockoutSuite) TestLockExpires() {
	s.fail("user", "admin", 3)
	s.Error(s.service.Check(s.ctx(), "user", "admin"))

	s.now = s.now.Add(16 * time.Minute)
	s.NoError(s.service.Check(s.ctx(), "user", "admin"))
}

func (s *LockoutSuite) TestWindowResetsCounter() {
	s.fail("user", "admin", 2)

	s.now = s.now.Add(11 * time.Minute)
	s.fail("user", "admin", 1)
	s.NoError(s.service.Check(s.ctx(), "user", "admin"))
}

func (s *LockoutSuite) TestClearResetsBothBudgets() {
	for i := range 5 {
		s.ip = fmt.Sprintf("203.0.113.%d", i+1)
		s.fail("user", "admin", 1)
	}
	s.Require().NoError(s.service.Clear(s.ctx(), "user", "admin"))

	s.ip = "203.0.113.50"
	s.fail("user", "admin", 2)
	s.NoError(s.service.Check(s.ctx(), "user", "admin"))
}

func (s *LockoutSuite) TestClientBudgetIsPerAddress() {
	s.fail("user", "admin", 3)

	s.ip = "10.0.0.2"
	s.NoError(s.service.Check(s.ctx(), "user", "admin"))
	s.ip = "10.0.0.1"
	s.NoError(s.service.Check(s.ctx(), "personnel", "admin"))
}

func TestKeyNormalizesIdentifier(t *testing.T) {
	if Key("user", " Admin ", "ip") != Key("user", "admin", "ip") {
		t.Fatal("expected identifier to be trimmed and lower-cased")
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func (s *LockoutSuite) TestExpiredEntriesAreDroppedOnRead() {
	s.fail("user", "admin", 1)
	s.Equal(2, s.store.Len())

	s.now = s.now.Add(11 * time.Minute)
	s.NoError(s.service.Check(s.ctx(), "user", "admin"))
	s.Zero(s.store.Len())
}

func (s *LockoutSuite) TestRemoveExpiredKeepsActiveLocks() {
	s.fail("user", "admin", 3)
	s.ip = "10.0.0.2"
	s.fail("personnel", "9000000001", 1)
	s.Equal(4, s.store.Len())

	// Counting windows are over but the admin lock runs for 15 minutes.
	s.Equal(3, s.store.RemoveExpiredAt(s.now.Add(11*time.Minute)))
	s.Equal(1, s.store.Len())
	s.Equal(1, s.store.RemoveExpiredAt(s.now.Add(16*time.Minute)))
	s.Zero(s.store.Len())
}

func TestStartCleanupStopsWithContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.StartCleanup(ctx, time.Millisecond) }()
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
