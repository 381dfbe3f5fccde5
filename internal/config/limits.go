package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LimiterProfile holds the request ceilings and window lengths for every
// rate-limit tier (per-lead, per-account, global, CRM provider) of pkg/mcp's
// fixed-window limiter (§4.3.3 of the spec). Profiles are loaded from YAML
// at startup so operators can override defaults per deployment, mirroring
// the teacher's regional-profile override mechanism.
type LimiterProfile struct {
	Name           string `yaml:"name"`
	PerLeadLimit   int64  `yaml:"per_lead_limit"`
	PerLeadWindow  int    `yaml:"per_lead_window_seconds"`
	PerAccountLim  int64  `yaml:"per_account_limit"`
	AccountWindow  int    `yaml:"per_account_window_seconds"`
	GlobalLimit    int64  `yaml:"global_limit"`
	GlobalWindow   int    `yaml:"global_window_seconds"`
	CRMProviderCap int64  `yaml:"crm_provider_limit"`
	CRMWindow      int    `yaml:"crm_provider_window_seconds"`
}

// DefaultLimiterProfile returns the built-in defaults from spec.md §4.3.3.
func DefaultLimiterProfile() LimiterProfile {
	return LimiterProfile{
		Name:           "default",
		PerLeadLimit:   10,
		PerLeadWindow:  60,
		PerAccountLim:  100,
		AccountWindow:  60,
		GlobalLimit:    1000,
		GlobalWindow:   60,
		CRMProviderCap: 1000,
		CRMWindow:      60,
	}
}

// LoadLimiterProfile loads a LimiterProfile YAML file, falling back to
// DefaultLimiterProfile when path is empty or the file does not exist.
func LoadLimiterProfile(path string) (LimiterProfile, error) {
	def := DefaultLimiterProfile()
	if path == "" {
		return def, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return def, nil
		}
		return def, fmt.Errorf("limiter profile: %w", err)
	}
	var p LimiterProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return def, fmt.Errorf("limiter profile: parse %s: %w", path, err)
	}
	fillDefaults(&p, def)
	return p, nil
}

func fillDefaults(p *LimiterProfile, def LimiterProfile) {
	if p.PerLeadLimit == 0 {
		p.PerLeadLimit = def.PerLeadLimit
	}
	if p.PerLeadWindow == 0 {
		p.PerLeadWindow = def.PerLeadWindow
	}
	if p.PerAccountLim == 0 {
		p.PerAccountLim = def.PerAccountLim
	}
	if p.AccountWindow == 0 {
		p.AccountWindow = def.AccountWindow
	}
	if p.GlobalLimit == 0 {
		p.GlobalLimit = def.GlobalLimit
	}
	if p.GlobalWindow == 0 {
		p.GlobalWindow = def.GlobalWindow
	}
	if p.CRMProviderCap == 0 {
		p.CRMProviderCap = def.CRMProviderCap
	}
	if p.CRMWindow == 0 {
		p.CRMWindow = def.CRMWindow
	}
}
