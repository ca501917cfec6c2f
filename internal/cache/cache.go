package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
	"github.com/rs/zerolog/log"
)

// Entry is a cached payload with its own expiry. Keys are deterministic
// composites of operation and entity id, so identical requests collide
// on the same entry.
type Entry struct {
	Payload   []byte    `json:"payload"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Live reports whether the entry may still be served.
func (e Entry) Live(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// DurableTier is the persisted cache level. It survives process
// restarts; all of its failures are soft (the tiered cache fails open).
type DurableTier interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error

	// DeleteExpired removes entries whose expiry has passed, returning
	// the number removed. Idempotent and safe to run concurrently with
	// reads and writes.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// fastTierCap bounds how long the fast tier retains an entry
// regardless of its own expiry; per-entry expiry is checked on read.
const fastTierCap = 24 * time.Hour

// Tiered is the two-level cache: an in-process otter tier in front of a
// durable tier. Reads are non-locking: concurrent misses on the same
// cold key may each fetch upstream, and the last writer wins. All
// writers agree on key derivation and TTL, so the duplicate work is an
// accepted cost of skipping a cache-wide lock.
type Tiered struct {
	fast    *otter.Cache[string, Entry]
	durable DurableTier
	counter *stats.Counter
	now     func() time.Time
}

// NewTiered builds the two-level cache. The durable tier may be nil, in
// which case only the in-process tier is used (handy in tests).
func NewTiered(durable DurableTier, maxEntries int) *Tiered {
	counter := stats.NewCounter()
	fast := otter.Must(&otter.Options[string, Entry]{
		MaximumSize:      maxEntries,
		StatsRecorder:    counter,
		ExpiryCalculator: otter.ExpiryCreating[string, Entry](fastTierCap),
	})

	return &Tiered{
		fast:    fast,
		durable: durable,
		counter: counter,
		now:     time.Now,
	}
}

// Get returns the live payload for the key, checking the fast tier
// first. A durable hit repopulates the fast tier. Durable tier errors
// degrade to a miss: the caller re-fetches from upstream.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	now := t.now()

	if entry, ok := t.fast.GetEntry(key); ok {
		if entry.Value.Live(now) {
			return entry.Value.Payload, true
		}
		t.fast.Invalidate(key)
	}

	if t.durable == nil {
		return nil, false
	}

	entry, ok, err := t.durable.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).
			Msg("durable cache read failed, treating as miss")
		return nil, false
	}
	if !ok || !entry.Live(now) {
		return nil, false
	}

	t.fast.Set(key, entry)
	return entry.Payload, true
}

// Set writes both tiers unconditionally with expiry now+ttl. A durable
// tier write failure is logged and swallowed: the fast tier still holds
// the value for the remainder of the process lifetime.
func (t *Tiered) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	entry := Entry{
		Payload:   payload,
		ExpiresAt: t.now().Add(ttl),
	}

	t.fast.Set(key, entry)

	if t.durable == nil {
		return
	}
	if err := t.durable.Set(ctx, key, entry); err != nil {
		log.Warn().Err(err).Str("key", key).
			Msg("durable cache write failed, entry held in memory only")
	}
}

// Delete removes the key from both tiers.
func (t *Tiered) Delete(ctx context.Context, key string) {
	t.fast.Invalidate(key)

	if t.durable == nil {
		return
	}
	if err := t.durable.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).
			Msg("durable cache delete failed")
	}
}

// SweepExpired removes expired entries from both tiers. Live entries
// are never touched, so it is safe alongside concurrent gets and sets.
func (t *Tiered) SweepExpired(ctx context.Context) {
	now := t.now()

	swept := 0
	for key, entry := range t.fast.All() {
		if !entry.Live(now) {
			t.fast.Invalidate(key)
			swept++
		}
	}

	var durableSwept int64
	if t.durable != nil {
		var err error
		durableSwept, err = t.durable.DeleteExpired(ctx, now)
		if err != nil {
			log.Warn().Err(err).Msg("durable cache sweep failed")
		}
	}

	if swept > 0 || durableSwept > 0 {
		log.Debug().Int("fast", swept).Int64("durable", durableSwept).
			Msg("swept expired cache entries")
	}
}
