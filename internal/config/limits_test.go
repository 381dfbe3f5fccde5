package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLimiterProfile_EmptyPathReturnsDefault(t *testing.T) {
	p, err := LoadLimiterProfile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultLimiterProfile(), p)
}

func TestLoadLimiterProfile_MissingFileReturnsDefault(t *testing.T) {
	p, err := LoadLimiterProfile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultLimiterProfile(), p)
}

func TestLoadLimiterProfile_PartialOverrideFillsRemainingDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: strict\nper_lead_limit: 2\nper_lead_window_seconds: 30\n"), 0o644))

	p, err := LoadLimiterProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "strict", p.Name)
	assert.Equal(t, int64(2), p.PerLeadLimit)
	assert.Equal(t, 30, p.PerLeadWindow)
	assert.Equal(t, DefaultLimiterProfile().GlobalLimit, p.GlobalLimit)
	assert.Equal(t, DefaultLimiterProfile().CRMProviderCap, p.CRMProviderCap)
}

func TestLoadLimiterProfile_UnparsableYAMLReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid yaml"), 0o644))

	_, err := LoadLimiterProfile(path)
	assert.Error(t, err)
}
