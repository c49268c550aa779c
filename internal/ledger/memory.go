package ledger

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory, thread-safe ChainStore with true
// compare-and-swap commit semantics. It is primarily useful for testing and
// for single-process deployments that do not require durability.
type MemoryStore struct {
	mu      sync.Mutex
	entries []*Entry
}

// NewMemoryStore creates an empty MemoryStore. Its tip is GenesisTip until
// the first commit.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// ReadTip implements ChainStore.
func (s *MemoryStore) ReadTip(_ context.Context) (Tip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tipLocked(), nil
}

func (s *MemoryStore) tipLocked() Tip {
	if len(s.entries) == 0 {
		return GenesisTip
	}
	last := s.entries[len(s.entries)-1]
	return Tip{Sequence: last.Sequence, Hash: last.Hash}
}

// CommitIfTipUnchanged implements ChainStore.
func (s *MemoryStore) CommitIfTipUnchanged(_ context.Context, expected Tip, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tipLocked() != expected {
		return ErrTipConflict
	}
	stored := *entry
	s.entries = append(s.entries, &stored)
	return nil
}

// StreamAll implements ChainStore. The snapshot is taken under the lock;
// fn runs outside it and receives copies, so callbacks cannot mutate the
// stored chain.
func (s *MemoryStore) StreamAll(ctx context.Context, fn func(*Entry) error) error {
	s.mu.Lock()
	snapshot := make([]*Entry, len(s.entries))
	copy(snapshot, s.entries)
	s.mu.Unlock()

	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry := *e
		if err := fn(&entry); err != nil {
			return err
		}
	}
	return nil
}

// GetEntry implements EntryGetter.
func (s *MemoryStore) GetEntry(_ context.Context, sequence int64) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sequence < 1 || sequence > int64(len(s.entries)) {
		return nil, ErrEntryNotFound
	}
	entry := *s.entries[sequence-1]
	return &entry, nil
}
