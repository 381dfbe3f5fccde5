package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterRequiredTools(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterRequiredTools())

	for _, name := range RequiredTools {
		_, ok := reg.Get(name)
		assert.True(t, ok, "expected %q to be registered", name)
	}
}

func TestRegistry_RejectsBlockedName(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(Tool{Name: "delete_lead"})
	assert.Error(t, err)
}

func TestRegistry_ValidateEnforcesRequiredFields(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterRequiredTools())

	err := reg.Validate("upsert_lead", map[string]any{"firstName": "Jane"})
	assert.Error(t, err, "email is required by upsert_lead's schema")

	err = reg.Validate("upsert_lead", map[string]any{"email": "jane@example.com"})
	assert.NoError(t, err)
}
