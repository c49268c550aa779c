package ledger

import "context"

// Tip identifies the most recently committed entry. The zero ledger's tip
// is GenesisTip.
type Tip struct {
	Sequence int64  `json:"sequence"`
	Hash     string `json:"hash"`
}

// GenesisTip is the tip of an empty ledger.
var GenesisTip = Tip{Sequence: 0, Hash: GenesisHash}

// ChainStore is the persistence contract the ledger builds on. The backing
// datastore must offer an atomic conditional write for the tip record; both
// MemoryStore and PostgresStore implement this interface.
type ChainStore interface {
	// ReadTip returns the current tip, or GenesisTip when the ledger is empty.
	ReadTip(ctx context.Context) (Tip, error)

	// CommitIfTipUnchanged atomically appends entry and advances the tip to
	// (entry.Sequence, entry.Hash), but only if the tip still equals
	// expected. If the tip moved it returns ErrTipConflict with no side
	// effects. Successful commits are linearizable across all callers.
	CommitIfTipUnchanged(ctx context.Context, expected Tip, entry *Entry) error

	// StreamAll invokes fn for every committed entry in ascending sequence
	// order. Each call streams an independent, finite snapshot from the
	// start; entries committed after the stream begins may not be observed.
	// A non-nil error from fn aborts the stream and is returned unchanged.
	StreamAll(ctx context.Context, fn func(*Entry) error) error
}

// EntryGetter is the optional point-read a store may offer for serving
// single entries. Both provided stores implement it.
type EntryGetter interface {
	GetEntry(ctx context.Context, sequence int64) (*Entry, error)
}
