package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultsWhenEnvUnset(t *testing.T) {
	cfg := Load()
	assert.Equal(t, CRMProviderMock, cfg.CRMProvider)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 60*time.Second, cfg.JobWallClockCap)
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestLoad_ReadsOverridesFromEnv(t *testing.T) {
	t.Setenv("CRM_PROVIDER", "SALESFORCE")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("JOB_WALL_CLOCK_CAP_SECONDS", "120")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := Load()
	assert.Equal(t, CRMProviderSalesforce, cfg.CRMProvider)
	assert.Equal(t, 8, cfg.WorkerConcurrency)
	assert.Equal(t, 120*time.Second, cfg.JobWallClockCap)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestLoad_InvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")
	cfg := Load()
	assert.Equal(t, 4, cfg.WorkerConcurrency)
}
