package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "pollbank/pkg/domain-errors"
)

func TestParseCategory(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseCategory("  ")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects unknown category", func(t *testing.T) {
		_, err := ParseCategory("observer")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts mixed case", func(t *testing.T) {
		c, err := ParseCategory(" Supervisor ")
		require.NoError(t, err)
		assert.Equal(t, CategorySupervisor, c)
		assert.Equal(t, "sector", c.UnitLabel())
	})
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("tehsil")
	require.NoError(t, err)
	assert.Equal(t, RoleRegional, r)

	r, err = ParseRole("ADMIN")
	require.NoError(t, err)
	assert.True(t, r.IsAdmin())

	_, err = ParseRole("root")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestRoutingCode(t *testing.T) {
	assert.Equal(t, "SBIN0001234", NormalizeRoutingCode(" sbin0001234 "))
	assert.True(t, ValidRoutingCode("sbin0001234"))
	assert.False(t, ValidRoutingCode("SBIN000123"))
	assert.True(t, SameRoutingCode("hdfc0000123", " HDFC0000123"))
}
