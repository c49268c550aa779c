package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore persists the ledger to PostgreSQL: one row per entry in
// audit_entries plus a single audit_tip row holding the (sequence, hash) of
// the latest commit. The tip row is advanced with a conditional UPDATE, so
// CommitIfTipUnchanged is a genuine compare-and-swap — no advisory locks,
// and correctness is independent of process count.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool. The
// schema is applied by cmd/migrate (migrations/0001_audit_ledger.sql).
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// ReadTip implements ChainStore. The tip row is seeded with GenesisTip by
// the migration; a missing row is treated as an empty ledger.
func (s *PostgresStore) ReadTip(ctx context.Context) (Tip, error) {
	var tip Tip
	err := s.pool.QueryRow(ctx,
		"SELECT seq, hash FROM audit_tip WHERE id = 1",
	).Scan(&tip.Sequence, &tip.Hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return GenesisTip, nil
	}
	if err != nil {
		return Tip{}, fmt.Errorf("read tip: %w", err)
	}
	return tip, nil
}

// CommitIfTipUnchanged implements ChainStore. The conditional tip UPDATE and
// the entry INSERT run in one transaction; zero rows affected by the UPDATE
// means another writer advanced the tip first, and the transaction rolls
// back with ErrTipConflict.
func (s *PostgresStore) CommitIfTipUnchanged(ctx context.Context, expected Tip, entry *Entry) error {
	details, err := canonicalDetails(entry.Details)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE audit_tip SET seq = $1, hash = $2
		 WHERE id = 1 AND seq = $3 AND hash = $4`,
		entry.Sequence, entry.Hash, expected.Sequence, expected.Hash,
	)
	if err != nil {
		return fmt.Errorf("advance tip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTipConflict
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_entries (seq, action, entity_type, entity_id,
		                            actor_id, actor_role, details, ts,
		                            prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.Sequence, entry.Action, entry.EntityType, entry.EntityID,
		entry.ActorID, entry.ActorRole, details, entry.Timestamp,
		entry.PrevHash, entry.Hash,
	); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.logger.Debug("ledger entry committed",
		zap.Int64("seq", entry.Sequence),
		zap.String("action", entry.Action),
	)
	return nil
}

const selectEntries = `SELECT seq, action, entity_type, entity_id, actor_id,
                              actor_role, details, ts, prev_hash, hash
                       FROM audit_entries`

// StreamAll implements ChainStore. Rows are streamed ordered by seq; each
// call opens a fresh cursor.
func (s *PostgresStore) StreamAll(ctx context.Context, fn func(*Entry) error) error {
	rows, err := s.pool.Query(ctx, selectEntries+" ORDER BY seq ASC")
	if err != nil {
		return fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return rows.Err()
}

// GetEntry implements EntryGetter.
func (s *PostgresStore) GetEntry(ctx context.Context, sequence int64) (*Entry, error) {
	rows, err := s.pool.Query(ctx, selectEntries+" WHERE seq = $1", sequence)
	if err != nil {
		return nil, fmt.Errorf("query entry %d: %w", sequence, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query entry %d: %w", sequence, err)
		}
		return nil, ErrEntryNotFound
	}
	return scanEntry(rows)
}

func scanEntry(rows pgx.Rows) (*Entry, error) {
	entry := &Entry{}
	if err := rows.Scan(
		&entry.Sequence, &entry.Action, &entry.EntityType, &entry.EntityID,
		&entry.ActorID, &entry.ActorRole, &entry.Details, &entry.Timestamp,
		&entry.PrevHash, &entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	entry.Timestamp = entry.Timestamp.UTC()
	return entry, nil
}
