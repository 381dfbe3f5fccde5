package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/redis/go-redis/v9"
)

// KeyMode selects one of the two derivation modes of spec.md §4.3.5.
type KeyMode string

const (
	// KeyWindowed appends a time-bucket term, letting retries inside the
	// window collapse to a single effect.
	KeyWindowed KeyMode = "windowed"
	// KeyStable omits the time term; used for upserts where identity is
	// intrinsic to (email, campaignId, action).
	KeyStable KeyMode = "stable"
)

// DefaultWindow is the windowed mode's bucket size (spec.md §4.3.5).
const DefaultWindow = 60 * time.Minute

// DefaultResultTTL is storeResult's default ttlHours=48.
const DefaultResultTTL = 48 * time.Hour

// DeriveKey computes SHA-256 over
// lowercase.trim(email) :: lowercase.trim(campaignId?|"none") :: lowercase(action),
// appending :: floor(now/window) for KeyWindowed (spec.md §4.3.5).
func DeriveKey(mode KeyMode, email, campaignID, action string, window time.Duration) string {
	email = strings.ToLower(strings.TrimSpace(email))
	campaign := strings.ToLower(strings.TrimSpace(campaignID))
	if campaign == "" {
		campaign = "none"
	}
	action = strings.ToLower(action)

	parts := []string{email, campaign, action}
	if mode == KeyWindowed {
		if window <= 0 {
			window = DefaultWindow
		}
		bucket := time.Now().UnixNano() / int64(window)
		parts = append(parts, strconv.FormatInt(bucket, 10))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "::")))
	return hex.EncodeToString(sum[:])
}

// Record is what isProcessed returns for a previously stored key.
type Record struct {
	Processed bool
	Result    json.RawMessage
	Timestamp time.Time
}

// Store implements the idempotency store of spec.md §4.3.5 over Redis,
// grounded on the teacher's executor.checkIdempotency + receipt-store
// idiom. Stored results are canonicalized with JCS before they are
// written; lookup keys come from DeriveKey and do not involve the stored
// JSON.
type Store struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewStore builds an idempotency Store. logger may be nil.
func NewStore(rdb *redis.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{rdb: rdb, logger: logger}
}

type storedRecord struct {
	Result    json.RawMessage `json:"result"`
	Timestamp time.Time       `json:"timestamp"`
}

func redisKey(key string) string { return "idempotency:" + key }

// IsProcessed reports whether key has a stored result. On backend outage
// it fails open — treats the key as not processed (spec.md §4.3.5 / §7).
func (s *Store) IsProcessed(ctx context.Context, key string) Record {
	raw, err := s.rdb.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("idempotency store unavailable, failing open", "error", err)
		}
		return Record{Processed: false}
	}
	var rec storedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.logger.Warn("idempotency record corrupt, treating as unprocessed", "error", err)
		return Record{Processed: false}
	}
	return Record{Processed: true, Result: rec.Result, Timestamp: rec.Timestamp}
}

// StoreResult persists value under key with the given TTL (default 48h).
// Outage failures are logged at warn level and otherwise ignored — a
// write that is lost to an outage simply means the next call re-executes,
// which is the fail-open posture spec.md §4.3.5 calls for.
func (s *Store) StoreResult(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("idempotency result not serialisable", "error", err)
		return
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		canon = raw
	}
	rec := storedRecord{Result: canon, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warn("idempotency record not serialisable", "error", err)
		return
	}
	if err := s.rdb.Set(ctx, redisKey(key), data, ttl).Err(); err != nil {
		s.logger.Warn("idempotency store unavailable, result not cached", "error", err)
	}
}
