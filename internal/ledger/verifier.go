package ledger

import (
	"context"
	"errors"
)

// Reason classifies the first divergence found by Verify.
type Reason string

const (
	// ReasonSequenceGap: an entry's sequence does not continue the expected
	// 1,2,3,... progression (a deleted or duplicated row).
	ReasonSequenceGap Reason = "SEQUENCE_GAP"
	// ReasonChainBroken: an entry's prev_hash does not match its
	// predecessor's hash (deletion, insertion or reordering).
	ReasonChainBroken Reason = "CHAIN_BROKEN"
	// ReasonContentTampered: an entry's stored hash does not match the hash
	// recomputed from its stored fields.
	ReasonContentTampered Reason = "CONTENT_TAMPERED"
)

// VerificationResult is the outcome of a full-chain verification. Integrity
// problems are data, not errors: a tampered ledger still yields a result.
type VerificationResult struct {
	Intact bool `json:"intact"`
	// TotalEntries is the full chain length when intact, otherwise the
	// number of entries examined up to and including the divergent one.
	TotalEntries     int64  `json:"total_entries"`
	BrokenAtSequence int64  `json:"broken_at_sequence,omitempty"`
	Reason           Reason `json:"reason,omitempty"`
}

// errStopStream aborts StreamAll once a divergence is recorded; entries past
// the first divergence are cryptographically unverifiable anyway.
var errStopStream = errors.New("ledger: stop stream")

// Verifier replays the ledger and cross-checks the hash chain.
type Verifier struct {
	store ChainStore
}

// NewVerifier creates a Verifier reading from store.
func NewVerifier(store ChainStore) *Verifier {
	return &Verifier{store: store}
}

// Verify streams every committed entry in sequence order and recomputes the
// chain from GenesisHash forward, stopping at the first divergence. It is a
// single read-only O(n) pass; a concurrent append is simply not observed by
// the stream's snapshot, never partially observed.
//
// The error return is reserved for store failure (*StoreError); a broken
// chain is reported in the result.
func (v *Verifier) Verify(ctx context.Context) (*VerificationResult, error) {
	res := &VerificationResult{Intact: true}
	expectedPrev := GenesisHash
	expectedSeq := int64(1)

	err := v.store.StreamAll(ctx, func(e *Entry) error {
		res.TotalEntries++

		if e.Sequence != expectedSeq {
			res.fail(expectedSeq, ReasonSequenceGap)
			return errStopStream
		}
		if e.PrevHash != expectedPrev {
			res.fail(e.Sequence, ReasonChainBroken)
			return errStopStream
		}
		computed, err := e.Recompute()
		if err != nil || computed != e.Hash {
			res.fail(e.Sequence, ReasonContentTampered)
			return errStopStream
		}

		expectedPrev = e.Hash
		expectedSeq++
		return nil
	})
	if err != nil && !errors.Is(err, errStopStream) {
		return nil, &StoreError{Op: "stream", Err: err}
	}
	return res, nil
}

func (r *VerificationResult) fail(sequence int64, reason Reason) {
	r.Intact = false
	r.BrokenAtSequence = sequence
	r.Reason = reason
}
