package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"pollbank/internal/accounts/models"
	"pollbank/internal/accounts/validator"
	"pollbank/internal/backend"
	"pollbank/internal/backend/memory"
	dirmodels "pollbank/internal/directory/models"
	"pollbank/internal/directory/resolver"
	lookupmocks "pollbank/internal/directory/resolver/mocks"
	"pollbank/internal/snapshot"
	"pollbank/pkg/domain"
	dErrors "pollbank/pkg/domain-errors"
	audit "pollbank/pkg/platform/audit"
	"pollbank/pkg/platform/audit/publisher"
	auditmemory "pollbank/pkg/platform/audit/store/memory"
)

type faultyBackend struct {
	*memory.Backend
	bankErr   error
	branchErr error
	saveErr   error
	verifyErr error
}

func (f *faultyBackend) CreateBank(ctx context.Context, bank dirmodels.Bank) error {
	if f.bankErr != nil {
		return f.bankErr
	}
	return f.Backend.CreateBank(ctx, bank)
}

func (f *faultyBackend) CreateBranch(ctx context.Context, branch dirmodels.Branch) error {
	if f.branchErr != nil {
		return f.branchErr
	}
	return f.Backend.CreateBranch(ctx, branch)
}

func (f *faultyBackend) SaveAccount(ctx context.Context, a models.PersonnelAccount) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Backend.SaveAccount(ctx, a)
}

func (f *faultyBackend) SetVerification(ctx context.Context, key models.Key, verified bool) error {
	if f.verifyErr != nil {
		return f.verifyErr
	}
	return f.Backend.SetVerification(ctx, key, verified)
}

var (
	admin    = domain.Actor{UserID: "U_1", Role: domain.RoleAdmin}
	regional = domain.Actor{UserID: "U_5", Role: domain.RoleRegional}

	keyPO1 = models.Key{Category: domain.CategoryFieldOfficer, RecordID: "PO_1"}
	keyPO2 = models.Key{Category: domain.CategoryFieldOfficer, RecordID: "PO_2"}
	keySO1 = models.Key{Category: domain.CategorySupervisor, RecordID: "SO_1"}
)

func ptr(s string) *string { return &s }

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	lookup   *lookupmocks.MockLookup
	backend  *faultyBackend
	snapshot *snapshot.Repository
	audit    *auditmemory.InMemoryStore
	service  *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.lookup = lookupmocks.NewMockLookup(s.ctrl)

	mem := memory.New()
	s.Require().NoError(mem.Seed(s.ctx, backend.Data{
		Accounts: []models.PersonnelAccount{
			{
				Category: domain.CategoryFieldOfficer, RecordID: "PO_1", OwningUserID: "U_5",
				PersonnelName: "Anil Kumar", AssemblyNo: "87", AssemblyName: "Agra Cantt", UnitID: "112",
				Mobile: "9876543210", AccountNumber: "3001", RoutingCode: "SBIN0000001",
				ProofDocument: "passbook.pdf", BankID: "B_1", BranchID: "BR_1",
			},
			{
				Category: domain.CategoryFieldOfficer, RecordID: "PO_2", OwningUserID: "U_5",
				PersonnelName: "Ravi", Mobile: "9111111111",
			},
			{
				Category: domain.CategorySupervisor, RecordID: "SO_1", OwningUserID: "U_6",
				PersonnelName: "Meena Devi", AssemblyNo: "88", AssemblyName: "Agra South", UnitID: "9",
				Mobile: "9000000001",
			},
		},
		Banks:    []dirmodels.Bank{{ID: "B_1", Name: "STATE BANK OF INDIA"}},
		Branches: []dirmodels.Branch{{ID: "BR_1", Name: "Sadar", RoutingCode: "SBIN0000001", BankID: "B_1"}},
	}))
	s.backend = &faultyBackend{Backend: mem}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.snapshot = snapshot.New(s.backend)
	s.audit = auditmemory.NewInMemoryStore()
	s.service = New(s.backend, s.snapshot, resolver.New(s.lookup),
		WithLogger(logger),
		WithAuditEmitter(publisher.NewPublisher(s.audit)),
	)
}

func (s *ServiceSuite) stored(key models.Key) models.PersonnelAccount {
	data, err := s.backend.FetchAll(s.ctx)
	s.Require().NoError(err)
	for _, a := range data.Accounts {
		if a.Key() == key {
			return a
		}
	}
	s.FailNow("record not found", key.String())
	return models.PersonnelAccount{}
}

func (s *ServiceSuite) actions() []string {
	events, err := s.audit.ListAll(s.ctx)
	s.Require().NoError(err)
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Action
	}
	return out
}

func bankingEdit(account, routing string) models.Edit {
	return models.Edit{
		AccountNumber: ptr(account),
		RoutingCode:   ptr(routing),
		ProofDocument: ptr("passbook.pdf"),
	}
}

func (s *ServiceSuite) TestSaveWithKnownRoutingCodeSkipsLookup() {
	outcome, err := s.service.Save(s.ctx, regional, keyPO2, bankingEdit("4410", " sbin0000001 "))
	s.Require().NoError(err)
	s.Equal(resolver.KindResolved, outcome.Resolution.Kind)
	s.Equal("B_1", outcome.Account.BankID)
	s.Equal("BR_1", outcome.Account.BranchID)
	s.Equal("SBIN0000001", outcome.Account.RoutingCode)
	s.False(outcome.Stale)
	s.False(outcome.Account.UpdatedAt.IsZero())
	s.Contains(s.actions(), string(audit.EventAccountSaved))
}

func (s *ServiceSuite) TestMissingMandatoryFieldFailsBeforeAnyIO() {
	edit := bankingEdit("", "HDFC0000123")
	_, err := s.service.Save(s.ctx, regional, keyPO2, edit)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeMissingMandatoryField))
	s.Contains(err.Error(), "account_number")
	s.Empty(s.stored(keyPO2).RoutingCode)
	s.Empty(s.actions())
}

func (s *ServiceSuite) TestMalformedRoutingCodeIsRejected() {
	_, err := s.service.Save(s.ctx, regional, keyPO2, bankingEdit("4410", "HDFC000012"))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidRoutingCode))
}

func (s *ServiceSuite) TestDuplicateMobileAcrossCategories() {
	edit := bankingEdit("4410", "SBIN0000001")
	edit.Mobile = ptr("9000000001")
	_, err := s.service.Save(s.ctx, regional, keyPO2, edit)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateRecord))

	var dup *validator.DuplicateError
	s.Require().True(errors.As(err, &dup))
	s.Equal(domain.CategorySupervisor, dup.Conflict.Category)
	s.Equal("Meena Devi", dup.Conflict.PersonnelName)
	s.Equal("9111111111", s.stored(keyPO2).Mobile)
}

func (s *ServiceSuite) TestDuplicateAccountAndRoutingCode() {
	_, err := s.service.Save(s.ctx, regional, keyPO2, bankingEdit("3001", "sbin0000001"))
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateRecord))
}

func (s *ServiceSuite) TestUnchangedResaveDoesNotConflictWithItself() {
	_, err := s.service.Save(s.ctx, regional, keyPO1, models.Edit{})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestDiscoveredCodeCreatesBankAndBranch() {
	s.lookup.EXPECT().Lookup(gomock.Any(), "HDFC0000123").
		Return(&dirmodels.LookupResult{BankName: " hdfc bank ", BranchName: " MG Road ", RoutingCode: "HDFC0000123"}, nil)

	outcome, err := s.service.Save(s.ctx, regional, keyPO2, bankingEdit("4410", "hdfc0000123"))
	s.Require().NoError(err)
	s.Equal(resolver.KindDiscovered, outcome.Resolution.Kind)
	s.Equal("B_2", outcome.Account.BankID)
	s.Equal("BR_2", outcome.Account.BranchID)
	s.Empty(outcome.EnrichmentFailures)

	dir, err := s.snapshot.Directory(s.ctx)
	s.Require().NoError(err)
	bank, ok := dir.FindBankByName("HDFC BANK")
	s.Require().True(ok)
	s.Equal("B_2", bank.ID)
	branch, ok := dir.FindBranchByRoutingCode("HDFC0000123")
	s.Require().True(ok)
	s.Equal("MG Road", branch.Name)
	s.Equal("B_2", branch.BankID)

	s.Subset(s.actions(), []string{
		string(audit.EventBankCreated),
		string(audit.EventBranchCreated),
		string(audit.EventAccountSaved),
	})
}

func (s *ServiceSuite) TestDiscoveredCodeReusesExistingBank() {
	s.lookup.EXPECT().Lookup(gomock.Any(), "SBIN0000777").
		Return(&dirmodels.LookupResult{BankName: "State Bank of India", BranchName: "Kamla Nagar"}, nil)

	outcome, err := s.service.Save(s.ctx, regional, keyPO2, bankingEdit("4410", "SBIN0000777"))
	s.Require().NoError(err)
	s.Nil(outcome.Resolution.PendingBank)
	s.Equal("B_1", outcome.Account.BankID)
	s.Equal("BR_2", outcome.Account.BranchID)
}

func (s *ServiceSuite) TestUnresolvedCodeStillSaves() {
	s.lookup.EXPECT().Lookup(gomock.Any(), "UTIB0000999").Return(nil, nil)

	outcome, err := s.service.Save(s.ctx, regional, keyPO2, bankingEdit("4410", "UTIB0000999"))
	s.Require().NoError(err)
	s.Equal(resolver.KindUnresolved, outcome.Resolution.Kind)
	s.Empty(outcome.Account.BankID)
	s.Empty(outcome.Account.BranchID)
	s.Equal("UTIB0000999", s.stored(keyPO2).RoutingCode)
}

func (s *ServiceSuite) TestLookupFailureIsUnresolvedNotFatal() {
	s.lookup.EXPECT().Lookup(gomock.Any(), "UTIB0000999").Return(nil, errors.New("dial tcp: timeout"))

	outcome, err := s.service.Save(s.ctx, regional, keyPO2, bankingEdit("4410", "UTIB0000999"))
	s.Require().NoError(err)
	s.Equal(resolver.KindUnresolved, outcome.Resolution.Kind)
}

func (s *ServiceSuite) TestBankFailureIsNonFatal() {
	s.backend.bankErr = errors.New("bank table locked")
	s.lookup.EXPECT().Lookup(gomock.Any(), "HDFC0000123").
		Return(&dirmodels.LookupResult{BankName: "HDFC BANK", BranchName: "MG Road"}, nil)

	outcome, err := s.service.Save(s.ctx, regional, keyPO2, bankingEdit("4410", "HDFC0000123"))
	s.Require().NoError(err)
	s.Require().Len(outcome.EnrichmentFailures, 1)
	s.Equal("create_bank", outcome.EnrichmentFailures[0].Step)
	s.Equal(string(dErrors.CodeDirectoryEnrichment), outcome.EnrichmentFailures[0].Code)
	s.Equal("BR_2", outcome.Account.BranchID)
	s.Contains(s.actions(), string(audit.EventDirectoryEnrichmentFailed))
}

func (s *ServiceSuite) TestBranchFailureClearsBinding() {
	s.backend.branchErr = errors.New("branch insert failed")
	s.lookup.EXPECT().Lookup(gomock.Any(), "HDFC0000123").
		Return(&dirmodels.LookupResult{BankName: "HDFC BANK", BranchName: "MG Road"}, nil)

	outcome, err := s.service.Save(s.ctx, regional, keyPO2, bankingEdit("4410", "HDFC0000123"))
	s.Require().NoError(err)
	s.Require().Len(outcome.EnrichmentFailures, 1)
	s.Equal("create_branch", outcome.EnrichmentFailures[0].Step)
	stored := s.stored(keyPO2)
	s.Empty(stored.BranchID)
	s.Empty(stored.BankID)
	s.Equal("4410", stored.AccountNumber)

	s.Equal(resolver.KindUnresolved, outcome.Resolution.Kind)
	s.Empty(outcome.Resolution.BankID)
	s.Empty(outcome.Resolution.BranchID)
	s.Nil(outcome.Resolution.PendingBranch)
	s.Contains(outcome.Resolution.Reason, "HDFC0000123")
	s.Empty(outcome.Account.BranchID)
}

func (s *ServiceSuite) TestAccountWriteFailureIsPersistenceFailure() {
	s.backend.saveErr = errors.New("quota exceeded for sheet Accounts")

	_, err := s.service.Save(s.ctx, regional, keyPO2, bankingEdit("4410", "SBIN0000001"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePersistenceFailure))
	s.Contains(err.Error(), "quota exceeded for sheet Accounts")
	s.Empty(s.stored(keyPO2).AccountNumber)
}

func (s *ServiceSuite) TestVerifiedRecordIsLockedForRegional() {
	_, err := s.service.SetVerification(s.ctx, regional, keyPO1, true)
	s.Require().NoError(err)

	_, err = s.service.Save(s.ctx, regional, keyPO1, models.Edit{PersonnelName: ptr("A. Kumar")})
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))

	outcome, err := s.service.Save(s.ctx, admin, keyPO1, models.Edit{PersonnelName: ptr("A. Kumar")})
	s.Require().NoError(err)
	s.Equal("A. Kumar", outcome.Account.PersonnelName)
	s.True(outcome.Account.Verified)
}

func (s *ServiceSuite) TestRegionalCannotEditOtherUsersRecords() {
	_, err := s.service.Save(s.ctx, regional, keySO1, bankingEdit("1", "SBIN0000001"))
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
}

func (s *ServiceSuite) TestVerificationLifecycle() {
	_, err := s.service.SetVerification(s.ctx, regional, keyPO2, true)
	s.True(dErrors.HasCode(err, dErrors.CodeIncompleteRecord))

	record, err := s.service.SetVerification(s.ctx, regional, keyPO1, true)
	s.Require().NoError(err)
	s.True(record.Verified)

	_, err = s.service.SetVerification(s.ctx, regional, keyPO1, false)
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
	s.True(s.stored(keyPO1).Verified)

	record, err = s.service.SetVerification(s.ctx, admin, keyPO1, false)
	s.Require().NoError(err)
	s.False(record.Verified)

	s.Subset(s.actions(), []string{string(audit.EventAccountVerified), string(audit.EventAccountUnverified)})
}

func (s *ServiceSuite) TestVerificationWriteFailure() {
	s.backend.verifyErr = errors.New("backend unreachable")
	_, err := s.service.SetVerification(s.ctx, admin, keyPO1, true)
	s.True(dErrors.HasCode(err, dErrors.CodePersistenceFailure))
	s.False(s.stored(keyPO1).Verified)
}

func (s *ServiceSuite) TestListIsScopedToActor() {
	all, err := s.service.List(s.ctx, admin, "")
	s.Require().NoError(err)
	s.Len(all, 3)

	supervisors, err := s.service.List(s.ctx, admin, domain.CategorySupervisor)
	s.Require().NoError(err)
	s.Len(supervisors, 1)

	owned, err := s.service.List(s.ctx, regional, "")
	s.Require().NoError(err)
	s.Len(owned, 2)

	self := domain.Actor{Role: domain.RolePersonnel, Category: domain.CategorySupervisor, RecordID: "SO_1"}
	own, err := s.service.List(s.ctx, self, "")
	s.Require().NoError(err)
	s.Require().Len(own, 1)
	s.Equal("SO_1", own[0].RecordID)
}

func (s *ServiceSuite) TestDefaultPINBlocksPersonnel() {
	fresh := domain.Actor{Role: domain.RolePersonnel, Category: domain.CategorySupervisor, RecordID: "SO_1", PINChangeRequired: true}

	_, err := s.service.Save(s.ctx, fresh, keySO1, bankingEdit("5510", "SBIN0000001"))
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
	s.Empty(s.stored(keySO1).AccountNumber)

	_, err = s.service.Get(s.ctx, fresh, keySO1)
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
	_, err = s.service.List(s.ctx, fresh, "")
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))

	fresh.PINChangeRequired = false
	outcome, err := s.service.Save(s.ctx, fresh, keySO1, bankingEdit("5510", "SBIN0000001"))
	s.Require().NoError(err)
	s.Equal("5510", outcome.Account.AccountNumber)
}

func (s *ServiceSuite) TestGetChecksVisibility() {
	_, err := s.service.Get(s.ctx, regional, keySO1)
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))

	record, err := s.service.Get(s.ctx, regional, keyPO1)
	s.Require().NoError(err)
	s.Equal("Anil Kumar", record.PersonnelName)
}

// heldFetcher reads the backend when a fetch starts; a held fetch then waits
// for release, so it delivers the state from before any write made meanwhile.
type heldFetcher struct {
	snapshot.Fetcher
	mu      sync.Mutex
	hold    chan struct{}
	started chan struct{}
}

func (h *heldFetcher) FetchAll(ctx context.Context) (*backend.Data, error) {
	data, err := h.Fetcher.FetchAll(ctx)
	h.mu.Lock()
	hold := h.hold
	h.hold = nil
	h.mu.Unlock()
	if hold != nil {
		close(h.started)
		<-hold
	}
	return data, err
}

func (s *ServiceSuite) TestReloadAfterSaveIgnoresEarlierFetch() {
	release := make(chan struct{})
	fetcher := &heldFetcher{Fetcher: s.backend, hold: release, started: make(chan struct{})}
	snap := snapshot.New(fetcher)
	svc := New(s.backend, snap, resolver.New(s.lookup), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	done := make(chan error, 1)
	go func() { done <- snap.Refresh(s.ctx) }()
	<-fetcher.started

	first := bankingEdit("4410", "SBIN0000001")
	first.Mobile = ptr("9222222222")
	outcome, err := svc.Save(s.ctx, regional, keyPO2, first)
	s.Require().NoError(err)
	s.False(outcome.Stale)

	close(release)
	s.Require().NoError(<-done)

	second := bankingEdit("5510", "SBIN0000001")
	second.Mobile = ptr("9222222222")
	_, err = svc.Save(s.ctx, admin, keySO1, second)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateRecord))
	s.Equal("9000000001", s.stored(keySO1).Mobile)
}
