package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Tier identifies one of the independent buckets a call is checked
// against (spec.md §4.3.3).
type Tier string

const (
	TierLead        Tier = "lead"
	TierAccount     Tier = "account"
	TierGlobal      Tier = "global"
	TierCRMProvider Tier = "crm_provider"
)

// TierLimit is one tier's configured budget.
type TierLimit struct {
	Limit  int
	Window time.Duration
}

// LimiterConfig is the full tiered configuration (spec.md §4.3.3 defaults:
// per-lead 10/60s, per-account 100/60s, global 1000/60s, per-CRM-provider
// 1000/60s, overridable).
type LimiterConfig struct {
	PerLead       TierLimit
	PerAccount    TierLimit
	Global        TierLimit
	CRMProviders  map[string]TierLimit // keyed by provider name; falls back to defaultCRM
	DefaultCRM    TierLimit
}

// DefaultLimiterConfig matches spec.md §4.3.3's stated defaults.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		PerLead:    TierLimit{Limit: 10, Window: 60 * time.Second},
		PerAccount: TierLimit{Limit: 100, Window: 60 * time.Second},
		Global:     TierLimit{Limit: 1000, Window: 60 * time.Second},
		DefaultCRM: TierLimit{Limit: 1000, Window: 60 * time.Second},
	}
}

// TierStatus reports the state of a single tier after a check.
type TierStatus struct {
	Tier      Tier
	Limit     int
	Remaining int
	ResetAt   time.Time
	Window    time.Duration
}

// Decision is the outcome of a rate-limit check across all tiers.
type Decision struct {
	Allowed   bool
	Violated  []Tier
	Tiers     []TierStatus
	RetryAfter time.Duration
}

// RateLimiter implements the tiered fixed-window counter of spec.md
// §4.3.3 over Redis (INCR + EXPIRE), grounded on the teacher's
// kernel.RedisLimiterStore wiring but using a fixed window instead of a
// token bucket. An in-process golang.org/x/time/rate.Limiter guards the
// CRM-provider tier as a cheap first line of defense before the Redis
// round-trip.
type RateLimiter struct {
	rdb    *redis.Client
	cfg    LimiterConfig
	logger *slog.Logger

	crmGuards map[string]*rate.Limiter
}

// NewRateLimiter builds a RateLimiter. logger may be nil, in which case
// slog.Default() is used.
func NewRateLimiter(rdb *redis.Client, cfg LimiterConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{rdb: rdb, cfg: cfg, logger: logger, crmGuards: make(map[string]*rate.Limiter)}
}

func (l *RateLimiter) crmLimit(provider string) TierLimit {
	if lim, ok := l.cfg.CRMProviders[provider]; ok {
		return lim
	}
	return l.cfg.DefaultCRM
}

func (l *RateLimiter) crmGuard(provider string) *rate.Limiter {
	if g, ok := l.crmGuards[provider]; ok {
		return g
	}
	lim := l.crmLimit(provider)
	rps := float64(lim.Limit) / lim.Window.Seconds()
	g := rate.NewLimiter(rate.Limit(rps), lim.Limit)
	l.crmGuards[provider] = g
	return g
}

// Check evaluates the per-lead, per-account, and global tiers for one
// call. leadKey and accountKey are the tier identities (account is the
// email domain when no CRM account id is known, per spec.md §9).
func (l *RateLimiter) Check(ctx context.Context, leadKey, accountKey string) Decision {
	statuses := make([]TierStatus, 0, 3)
	var violated []Tier
	var retryAfter time.Duration

	checks := []struct {
		tier  Tier
		key   string
		limit TierLimit
	}{
		{TierLead, "ratelimit:lead:" + leadKey, l.cfg.PerLead},
		{TierAccount, "ratelimit:account:" + accountKey, l.cfg.PerAccount},
		{TierGlobal, "ratelimit:global", l.cfg.Global},
	}

	for _, c := range checks {
		status, allowed, err := l.checkFixedWindow(ctx, c.tier, c.key, c.limit)
		if err != nil {
			// Fail open: a backend outage must not halt the worker
			// (spec.md §4.3.3 / §7 "Infrastructure outage on limiter...").
			l.logger.Warn("rate limiter backend unavailable, failing open",
				"tier", c.tier, "error", err)
			continue
		}
		statuses = append(statuses, status)
		if !allowed {
			violated = append(violated, c.tier)
			if status.Window > retryAfter {
				retryAfter = status.Window
			}
		}
	}

	return Decision{
		Allowed:    len(violated) == 0,
		Violated:   violated,
		Tiers:      statuses,
		RetryAfter: retryAfter,
	}
}

// CheckCRMProvider checks (and, if allowed, reserves) a CRM-provider
// bucket token, guarding the shared Redis counter with an in-process
// token bucket first.
func (l *RateLimiter) CheckCRMProvider(ctx context.Context, provider string) (TierStatus, bool) {
	if !l.crmGuard(provider).Allow() {
		lim := l.crmLimit(provider)
		return TierStatus{Tier: TierCRMProvider, Limit: lim.Limit, Remaining: 0, Window: lim.Window}, false
	}
	status, allowed, err := l.checkFixedWindow(ctx, TierCRMProvider, "ratelimit:crm:"+provider, l.crmLimit(provider))
	if err != nil {
		l.logger.Warn("rate limiter backend unavailable, failing open", "tier", TierCRMProvider, "provider", provider, "error", err)
		return TierStatus{Tier: TierCRMProvider}, true
	}
	return status, allowed
}

// checkFixedWindow implements incr(key:floor(now/window)); expire(window);
// allowed = count <= limit (spec.md §4.3.3's fixed-window algorithm).
func (l *RateLimiter) checkFixedWindow(ctx context.Context, tier Tier, key string, limit TierLimit) (TierStatus, bool, error) {
	now := time.Now()
	windowIdx := now.Unix() / int64(limit.Window.Seconds())
	windowKey := fmt.Sprintf("%s:%d", key, windowIdx)

	count, err := l.rdb.Incr(ctx, windowKey).Result()
	if err != nil {
		return TierStatus{}, false, err
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, windowKey, limit.Window).Err(); err != nil {
			return TierStatus{}, false, err
		}
	}

	resetAt := time.Unix((windowIdx+1)*int64(limit.Window.Seconds()), 0)
	remaining := limit.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	status := TierStatus{
		Tier:      tier,
		Limit:     limit.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
		Window:    limit.Window,
	}
	return status, int(count) <= limit.Limit, nil
}
