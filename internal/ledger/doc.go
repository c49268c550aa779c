// Package ledger implements the tamper-evident audit ledger.
//
// Every privileged action in the tracking application (project create,
// disbursement approval, milestone verification, issue resolution, document
// upload) is recorded as an Entry in an append-only log. Each entry carries
// the SHA-256 of its predecessor, so the committed history forms a single
// hash chain anchored at GenesisHash; any mutation, deletion, or reordering
// of stored entries is detectable by Verifier.
//
// The chain tip — the (sequence, hash) pair of the most recent entry — is
// the only shared mutable state. Manager advances it with an optimistic
// read/conditional-commit/retry loop against the ChainStore's atomic
// CommitIfTipUnchanged primitive, so concurrent appenders can never fork the
// chain: for any observed tip exactly one candidate becomes its successor.
//
// Two ChainStore implementations are provided:
//   - MemoryStore: in-process, for testing and development.
//   - PostgresStore: durable, for production use.
package ledger
