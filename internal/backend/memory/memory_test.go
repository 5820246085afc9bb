package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pollbank/internal/accounts/models"
	"pollbank/internal/backend"
	dirmodels "pollbank/internal/directory/models"
	"pollbank/pkg/domain"
	"pollbank/pkg/platform/sentinel"
)

type MemoryBackendSuite struct {
	suite.Suite
	backend *Backend
	now     time.Time
	ctx     context.Context
}

func TestMemoryBackendSuite(t *testing.T) {
	suite.Run(t, new(MemoryBackendSuite))
}

func (s *MemoryBackendSuite) SetupTest() {
	s.now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = context.Background()
	s.backend = New(WithClock(func() time.Time { return s.now }))
	s.Require().NoError(s.backend.Seed(s.ctx, backend.Data{
		Accounts: []models.PersonnelAccount{
			{Category: domain.CategoryFieldOfficer, RecordID: "PO_1", OwningUserID: "U_2", PersonnelName: "Anil"},
			{Category: domain.CategorySupervisor, RecordID: "PO_1", OwningUserID: "U_2", PersonnelName: "Meena"},
		},
		Users: []models.User{{ID: "U_2", UserName: "tehsil_agra", Role: domain.RoleRegional}},
	}))
}

func (s *MemoryBackendSuite) TestSaveAccountKeepsVerificationAndOwnership() {
	s.Require().NoError(s.backend.SetVerification(s.ctx, models.Key{Category: domain.CategoryFieldOfficer, RecordID: "PO_1"}, true))

	s.now = s.now.Add(time.Hour)
	err := s.backend.SaveAccount(s.ctx, models.PersonnelAccount{
		Category: domain.CategoryFieldOfficer, RecordID: "PO_1",
		OwningUserID: "U_99", PersonnelName: "Anil Kumar", AccountNumber: "3001",
	})
	s.Require().NoError(err)

	data, err := s.backend.FetchAll(s.ctx)
	s.Require().NoError(err)
	got := data.Accounts[0]
	s.Equal("Anil Kumar", got.PersonnelName)
	s.Equal("U_2", got.OwningUserID)
	s.True(got.Verified)
	s.Equal(s.now, got.UpdatedAt)
	s.Equal("Meena", data.Accounts[1].PersonnelName)
}

func (s *MemoryBackendSuite) TestSaveUnknownRecordFails() {
	err := s.backend.SaveAccount(s.ctx, models.PersonnelAccount{Category: domain.CategoryAssistantOfficer, RecordID: "PO_1"})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	s.Contains(err.Error(), "assistant_officer/PO_1")
}

func (s *MemoryBackendSuite) TestDirectoryNaturalKeysAreUnique() {
	s.Require().NoError(s.backend.CreateBank(s.ctx, dirmodels.Bank{ID: "B_1", Name: "STATE BANK OF INDIA"}))
	s.ErrorIs(s.backend.CreateBank(s.ctx, dirmodels.Bank{ID: "B_2", Name: " state bank of india"}), sentinel.ErrConflict)

	s.Require().NoError(s.backend.CreateBranch(s.ctx, dirmodels.Branch{ID: "BR_1", RoutingCode: "SBIN0000001", BankID: "B_1"}))
	s.ErrorIs(s.backend.CreateBranch(s.ctx, dirmodels.Branch{ID: "BR_2", RoutingCode: "sbin0000001", BankID: "B_1"}), sentinel.ErrConflict)

	data, err := s.backend.FetchAll(s.ctx)
	s.Require().NoError(err)
	s.Len(data.Banks, 1)
	s.Len(data.Branches, 1)
	s.Equal(s.now, data.Branches[0].CreatedAt)
}

func (s *MemoryBackendSuite) TestUpdatePINMarksChanged() {
	key := models.Key{Category: domain.CategorySupervisor, RecordID: "PO_1"}
	s.Require().NoError(s.backend.UpdatePIN(s.ctx, key, "hash"))

	data, err := s.backend.FetchAll(s.ctx)
	s.Require().NoError(err)
	s.Equal("hash", data.Accounts[1].PINHash)
	s.True(data.Accounts[1].PINChanged)
	s.False(data.Accounts[0].PINChanged)
}

func (s *MemoryBackendSuite) TestFetchAllReturnsCopies() {
	data, err := s.backend.FetchAll(s.ctx)
	s.Require().NoError(err)
	data.Accounts[0].PersonnelName = "mutated"

	again, err := s.backend.FetchAll(s.ctx)
	s.Require().NoError(err)
	s.Equal("Anil", again.Accounts[0].PersonnelName)
}

func (s *MemoryBackendSuite) TestUpdateUserKeepsLoginName() {
	s.Require().NoError(s.backend.UpdateUser(s.ctx, models.User{
		ID: "U_2", UserName: "renamed", PasswordHash: "$2a$pw", Role: domain.RoleRegional,
		OfficerName: "R. Sharma", Designation: "Tehsildar", Mobile: "9811111111",
	}))

	data, err := s.backend.FetchAll(s.ctx)
	s.Require().NoError(err)
	got := data.Users[0]
	s.Equal("tehsil_agra", got.UserName)
	s.Equal("$2a$pw", got.PasswordHash)
	s.Equal("R. Sharma", got.OfficerName)
	s.Equal("Tehsildar", got.Designation)
	s.Equal("9811111111", got.Mobile)

	err = s.backend.UpdateUser(s.ctx, models.User{ID: "U_404"})
	s.ErrorIs(err, sentinel.ErrNotFound)
}
