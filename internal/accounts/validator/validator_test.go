package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollbank/internal/accounts/models"
	"pollbank/pkg/domain"
	dErrors "pollbank/pkg/domain-errors"
)

func existingSet() []models.PersonnelAccount {
	return []models.PersonnelAccount{
		{
			Category: domain.CategoryFieldOfficer, RecordID: "PO_1", PersonnelName: "Anil Kumar",
			AssemblyNo: "87", AssemblyName: "Agra Cantt", UnitID: "112",
			Mobile: "9876543210", AccountNumber: "3001", RoutingCode: "SBIN0000001",
		},
		{
			Category: domain.CategorySupervisor, RecordID: "SO_1", PersonnelName: "Meena Devi",
			AssemblyNo: "88", AssemblyName: "Agra South", UnitID: "9",
			Mobile: "9000000001", AccountNumber: "4410", RoutingCode: "HDFC0000123",
		},
	}
}

func TestDuplicateMobileAcrossCategories(t *testing.T) {
	candidate := &models.PersonnelAccount{
		Category: domain.CategoryAssistantOfficer, RecordID: "PO_1",
		Mobile: " 9876543210 ", AccountNumber: "999", RoutingCode: "PUNB0123400",
	}
	err := CheckUnique(candidate, existingSet())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateRecord))

	var dup *DuplicateError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, RuleMobile, dup.Conflict.Rule)
	assert.Equal(t, domain.CategoryFieldOfficer, dup.Conflict.Category)
	assert.Equal(t, "Anil Kumar", dup.Conflict.PersonnelName)
	assert.Equal(t, "87", dup.Conflict.AssemblyNo)
	assert.Equal(t, "part", dup.Conflict.UnitLabel)
	assert.Contains(t, err.Error(), "Agra Cantt")
}

func TestDuplicateAccountComparesRoutingCaseInsensitively(t *testing.T) {
	candidate := &models.PersonnelAccount{
		Category: domain.CategoryFieldOfficer, RecordID: "PO_2",
		Mobile: "9111111111", AccountNumber: "4410 ", RoutingCode: "hdfc0000123",
	}
	err := CheckUnique(candidate, existingSet())
	var dup *DuplicateError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, RuleAccount, dup.Conflict.Rule)
	assert.Equal(t, "sector", dup.Conflict.UnitLabel)
	assert.Equal(t, "SO_1", dup.ErrorDetails().(Conflict).RecordID)
}

func TestSameAccountDifferentRoutingIsAllowed(t *testing.T) {
	candidate := &models.PersonnelAccount{
		Category: domain.CategoryFieldOfficer, RecordID: "PO_2",
		Mobile: "9111111111", AccountNumber: "4410", RoutingCode: "SBIN0000001",
	}
	assert.NoError(t, CheckUnique(candidate, existingSet()))
}

func TestRecordDoesNotConflictWithItself(t *testing.T) {
	set := existingSet()
	candidate := set[0]
	assert.NoError(t, CheckUnique(&candidate, set))
}

func TestUniquenessIsSymmetric(t *testing.T) {
	set := existingSet()
	set[1].Mobile = set[0].Mobile

	a, b := set[0], set[1]
	assert.Error(t, CheckUnique(&a, set))
	assert.Error(t, CheckUnique(&b, set))
}

func TestFirstViolationWins(t *testing.T) {
	candidate := &models.PersonnelAccount{
		Category: domain.CategorySupervisor, RecordID: "SO_2",
		Mobile: "9000000001", AccountNumber: "3001", RoutingCode: "SBIN0000001",
	}
	var dup *DuplicateError
	require.True(t, errors.As(CheckUnique(candidate, existingSet()), &dup))
	assert.Equal(t, RuleAccount, dup.Conflict.Rule)
	assert.Equal(t, "PO_1", dup.Conflict.RecordID)
}

func TestEmptyMobileNeverCollides(t *testing.T) {
	set := existingSet()
	set[0].Mobile = ""
	candidate := &models.PersonnelAccount{
		Category: domain.CategorySupervisor, RecordID: "SO_2",
		AccountNumber: "777", RoutingCode: "SBIN0000001",
	}
	assert.NoError(t, CheckUnique(candidate, set))
}
