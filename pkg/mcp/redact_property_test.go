//go:build property
// +build property

package mcp_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/leadcatalyst/core/pkg/mcp"
)

// TestRedactParams_Idempotent verifies redacting an already-redacted
// params map never changes it further — redaction is a closure operation.
func TestRedactParams_Idempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)
	redactor := mcp.NewRedactor()

	properties.Property("redaction is idempotent on sensitive string fields", prop.ForAll(
		func(email string) bool {
			params := map[string]any{"email": email}
			once := redactor.RedactParams(params)
			twice := redactor.RedactParams(once)
			return once["email"] == twice["email"]
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestRedactParams_NonSensitiveFieldsUnchanged verifies a field whose
// normalized name isn't in the sensitive set, and whose content doesn't
// look like an email or a long digit run, always passes through untouched.
func TestRedactParams_NonSensitiveFieldsUnchanged(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)
	redactor := mcp.NewRedactor()

	properties.Property("non-sensitive field content passes through unchanged", prop.ForAll(
		func(value string) bool {
			params := map[string]any{"company": value}
			out := redactor.RedactParams(params)
			return out["company"] == value
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestDeriveKey_StableModeIgnoresWindow verifies stable-mode key
// derivation never depends on the window argument.
func TestDeriveKey_StableModeIgnoresWindow(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("stable key ignores the window argument", prop.ForAll(
		func(email, campaignID, action string) bool {
			k1 := mcp.DeriveKey(mcp.KeyStable, email, campaignID, action, 0)
			k2 := mcp.DeriveKey(mcp.KeyStable, email, campaignID, action, mcp.DefaultWindow)
			return k1 == k2
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
