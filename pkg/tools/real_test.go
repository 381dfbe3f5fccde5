package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeString_EscapesControlCharsAndQuotes(t *testing.T) {
	got := sanitizeString("line1\nline2\t\"quoted\" back\\slash")
	assert.NotContains(t, got, "\n")
	assert.NotContains(t, got, "\t")
	assert.Contains(t, got, `\"quoted\"`)
	assert.Contains(t, got, `\\`)
}

func TestValidateIDFields(t *testing.T) {
	assert.NoError(t, validateIDFields(map[string]any{"leadId": "00Qabc123def456ABC"})) // 18 chars
	assert.NoError(t, validateIDFields(map[string]any{"leadId": "00Qabc123def456"}))  // 15 chars
	assert.Error(t, validateIDFields(map[string]any{"leadId": "not-an-id!"}))
	assert.NoError(t, validateIDFields(map[string]any{"subject": "no id suffix here"}))
}

func TestBuildSearchQuery(t *testing.T) {
	q, err := BuildSearchQuery("email", "jane@example.com")
	assert.NoError(t, err)
	assert.Equal(t, `email = 'jane@example.com'`, q)

	_, err = BuildSearchQuery("email; DROP TABLE leads", "x")
	assert.Error(t, err)
}
