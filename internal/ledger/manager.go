package ledger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxAttempts bounds the optimistic commit loop in Append. Each
// conflicting round means another writer committed in the meantime, so the
// budget is only exhausted under sustained write pressure.
const DefaultMaxAttempts = 5

// Record is the caller-supplied content of a new audit entry. Sequence,
// timestamp and both hashes are derived internally — there is deliberately
// no way to supply a previous hash.
//
// Details values must round-trip through JSON (integers beyond 2^53 will
// not survive a float64 round trip and should be passed as strings).
type Record struct {
	Action     string
	EntityType string
	EntityID   string
	ActorID    string
	ActorRole  string
	Details    map[string]any
}

// Manager owns the append protocol: read the tip, link the candidate entry
// to it, commit conditionally, retry on conflict. It is stateless and safe
// for concurrent use; the chain tip in the store is the only shared state.
type Manager struct {
	store       ChainStore
	logger      *zap.Logger
	clock       func() time.Time
	maxAttempts int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the timestamp source. Intended for tests.
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) { m.clock = clock }
}

// WithMaxAttempts overrides the retry budget for conflicting commits.
// Values below 1 are ignored.
func WithMaxAttempts(n int) ManagerOption {
	return func(m *Manager) {
		if n >= 1 {
			m.maxAttempts = n
		}
	}
}

// NewManager creates a Manager appending to store.
func NewManager(store ChainStore, logger *zap.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		logger:      logger,
		clock:       time.Now,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Append validates rec, chains it to the current tip and commits it
// atomically, retrying with a freshly read tip when another append wins the
// race. On success exactly one new entry is durably persisted and returned;
// on any failure nothing is persisted.
//
// Errors: *ValidationError for missing required fields or unserializable
// details, *ContentionError when the retry budget is exhausted, and
// *StoreError for unexpected store failures.
func (m *Manager) Append(ctx context.Context, rec Record) (*Entry, error) {
	if err := rec.validate(); err != nil {
		return nil, err
	}
	// Surface unserializable details before touching the store.
	if _, err := canonicalDetails(rec.Details); err != nil {
		return nil, &ValidationError{Field: "details"}
	}

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tip, err := m.store.ReadTip(ctx)
		if err != nil {
			return nil, &StoreError{Op: "read tip", Err: err}
		}

		entry := &Entry{
			Sequence:   tip.Sequence + 1,
			Action:     rec.Action,
			EntityType: rec.EntityType,
			EntityID:   rec.EntityID,
			ActorID:    rec.ActorID,
			ActorRole:  rec.ActorRole,
			Details:    rec.Details,
			// Truncated to the store's timestamp precision so the
			// persisted entry re-hashes to the same digest.
			Timestamp: m.clock().UTC().Truncate(time.Microsecond),
			PrevHash:  tip.Hash,
		}
		entry.Hash, err = hashEntry(entry)
		if err != nil {
			return nil, &ValidationError{Field: "details"}
		}

		err = m.store.CommitIfTipUnchanged(ctx, tip, entry)
		if err == nil {
			m.logger.Debug("audit entry appended",
				zap.Int64("sequence", entry.Sequence),
				zap.String("action", entry.Action),
				zap.String("entity_type", entry.EntityType),
				zap.String("entity_id", entry.EntityID),
				zap.Int("attempt", attempt),
			)
			return entry, nil
		}
		if !errors.Is(err, ErrTipConflict) {
			return nil, &StoreError{Op: "commit", Err: err}
		}

		m.logger.Debug("append conflict, retrying",
			zap.Int64("observed_sequence", tip.Sequence),
			zap.Int("attempt", attempt),
		)
	}

	return nil, &ContentionError{Attempts: m.maxAttempts}
}
