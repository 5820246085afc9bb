package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pollbank/internal/accounts/models"
	"pollbank/internal/auth/lockout"
	"pollbank/internal/auth/secrets"
	"pollbank/internal/backend"
	"pollbank/internal/backend/memory"
	jwttoken "pollbank/internal/jwt_token"
	"pollbank/internal/snapshot"
	"pollbank/pkg/domain"
	dErrors "pollbank/pkg/domain-errors"
	"pollbank/pkg/platform/audit/publisher"
	auditmemory "pollbank/pkg/platform/audit/store/memory"
	"pollbank/pkg/requestcontext"
)

type AuthServiceSuite struct {
	suite.Suite
	ctx     context.Context
	backend *memory.Backend
	jwt     *jwttoken.JWTService
	audit   *auditmemory.InMemoryStore
	service *Service
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceSuite))
}

func (s *AuthServiceSuite) SetupTest() {
	s.ctx = context.Background()
	hash, err := secrets.Hash("s3cret-pass")
	s.Require().NoError(err)

	s.backend = memory.New()
	s.Require().NoError(s.backend.Seed(s.ctx, backend.Data{
		Users: []models.User{
			{ID: "U_1", UserName: "admin", PasswordHash: hash, Role: domain.RoleAdmin, OfficerName: "District Officer"},
			{ID: "U_5", UserName: "tehsil_agra", Role: domain.RoleRegional},
		},
		Accounts: []models.PersonnelAccount{
			{Category: domain.CategorySupervisor, RecordID: "SO_1", PersonnelName: "Meena Devi", Mobile: "9000000001"},
		},
	}))

	s.jwt = jwttoken.NewJWTService("test-key", "pollbank", "pollbank-api")
	s.audit = auditmemory.NewInMemoryStore()
	s.service = New(snapshot.New(s.backend), s.backend, s.jwt, time.Hour, "123456",
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditEmitter(publisher.NewPublisher(s.audit)),
	)
}

func (s *AuthServiceSuite) TestUserLogin() {
	res, err := s.service.Login(s.ctx, " ADMIN ", "s3cret-pass")
	s.Require().NoError(err)
	s.Equal(domain.RoleAdmin, res.Role)
	s.Equal("District Officer", res.DisplayName)

	claims, err := s.jwt.ValidateToken(res.AccessToken)
	s.Require().NoError(err)
	s.Equal("U_1", claims.Actor().UserID)
}

func (s *AuthServiceSuite) TestUserLoginFailures() {
	_, err := s.service.Login(s.ctx, "admin", "wrong")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.Login(s.ctx, "nobody", "x")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	// No password provisioned.
	_, err = s.service.Login(s.ctx, "tehsil_agra", "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	events, err := s.audit.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Len(events, 3)
}

func (s *AuthServiceSuite) TestPersonnelLoginWithDefaultPIN() {
	res, err := s.service.PersonnelLogin(s.ctx, "9000000001", "123456")
	s.Require().NoError(err)
	s.True(res.PINChangeRequired)
	s.Equal(domain.RolePersonnel, res.Role)
	s.Equal(domain.CategorySupervisor, res.Category)
	s.Equal("SO_1", res.RecordID)

	_, err = s.service.PersonnelLogin(s.ctx, "9000000001", "000000")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *AuthServiceSuite) TestChangePIN() {
	actor := domain.Actor{Role: domain.RolePersonnel, Category: domain.CategorySupervisor, RecordID: "SO_1"}

	_, err := s.service.ChangePIN(s.ctx, actor, "123456", "12")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = s.service.ChangePIN(s.ctx, actor, "123456", "123456")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = s.service.ChangePIN(s.ctx, actor, "123456", "12ab")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = s.service.ChangePIN(s.ctx, actor, "999999", "4821")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.ChangePIN(s.ctx, actor, "123456", "4821")
	s.Require().NoError(err)

	_, err = s.service.PersonnelLogin(s.ctx, "9000000001", "123456")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	res, err := s.service.PersonnelLogin(s.ctx, "9000000001", "4821")
	s.Require().NoError(err)
	s.False(res.PINChangeRequired)
}

func (s *AuthServiceSuite) TestDefaultPINTokenIsRestrictedUntilChanged() {
	res, err := s.service.PersonnelLogin(s.ctx, "9000000001", "123456")
	s.Require().NoError(err)
	claims, err := s.jwt.ValidateToken(res.AccessToken)
	s.Require().NoError(err)
	actor := claims.Actor()
	s.True(actor.PINChangeRequired)

	changed, err := s.service.ChangePIN(s.ctx, actor, "123456", "4821")
	s.Require().NoError(err)
	s.False(changed.PINChangeRequired)
	s.Equal("Meena Devi", changed.DisplayName)
	claims, err = s.jwt.ValidateToken(changed.AccessToken)
	s.Require().NoError(err)
	s.False(claims.Actor().PINChangeRequired)
	s.Equal("SO_1", claims.Actor().RecordID)

	res, err = s.service.PersonnelLogin(s.ctx, "9000000001", "4821")
	s.Require().NoError(err)
	claims, err = s.jwt.ValidateToken(res.AccessToken)
	s.Require().NoError(err)
	s.False(claims.Actor().PINChangeRequired)
}

func (s *AuthServiceSuite) TestChangePINRequiresPersonnel() {
	_, err := s.service.ChangePIN(s.ctx, domain.Actor{UserID: "U_1", Role: domain.RoleAdmin}, "123456", "4821")
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
}

func (s *AuthServiceSuite) TestRepeatedFailuresLockTheLogin() {
	locks, err := lockout.New(lockout.NewMemoryStore(), lockout.WithLimits(2, time.Minute, time.Minute))
	s.Require().NoError(err)
	s.service.lockout = locks

	_, err = s.service.Login(s.ctx, "admin", "wrong")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	_, err = s.service.Login(s.ctx, "admin", "wrong")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.Login(s.ctx, "admin", "s3cret-pass")
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))

	// Other identifiers are unaffected.
	_, err = s.service.PersonnelLogin(s.ctx, "9000000001", "123456")
	s.NoError(err)
}

func (s *AuthServiceSuite) TestRotatingClientAddressStillLocks() {
	locks, err := lockout.New(lockout.NewMemoryStore(),
		lockout.WithLimits(2, time.Minute, time.Minute),
		lockout.WithIdentifierLimit(3),
	)
	s.Require().NoError(err)
	s.service.lockout = locks

	for _, ip := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		_, err = s.service.Login(requestcontext.WithClientIP(s.ctx, ip), "admin", "wrong")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	}

	_, err = s.service.Login(requestcontext.WithClientIP(s.ctx, "198.51.100.4"), "admin", "s3cret-pass")
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
}

func (s *AuthServiceSuite) TestSuccessfulLoginClearsFailures() {
	locks, err := lockout.New(lockout.NewMemoryStore(), lockout.WithLimits(2, time.Minute, time.Minute))
	s.Require().NoError(err)
	s.service.lockout = locks

	_, err = s.service.PersonnelLogin(s.ctx, "9000000001", "000000")
	s.Error(err)
	_, err = s.service.PersonnelLogin(s.ctx, "9000000001", "123456")
	s.Require().NoError(err)
	_, err = s.service.PersonnelLogin(s.ctx, "9000000001", "000000")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	_, err = s.service.PersonnelLogin(s.ctx, "9000000001", "123456")
	s.NoError(err)
}
