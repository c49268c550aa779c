package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// GenesisHash is the fixed sentinel used as PrevHash of the first entry.
// It anchors the chain: an empty ledger's tip hash equals this constant, and
// exactly one committed entry (sequence 1) may reference it.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is a single committed record in the audit ledger. Entries are
// immutable once committed; corrections are modeled as new entries
// referencing the corrected entity.
type Entry struct {
	// Sequence is assigned at commit time: 1-based, unique, gapless.
	Sequence   int64          `json:"sequence"`
	Action     string         `json:"action"`      // e.g. CREATE, UPDATE, APPROVE, UPLOAD, VERIFY
	EntityType string         `json:"entity_type"` // e.g. "project", "disbursement"
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	ActorRole  string         `json:"actor_role"` // role snapshot at time of action
	Details    map[string]any `json:"details"`
	Timestamp  time.Time      `json:"timestamp"`
	PrevHash   string         `json:"prev_hash"`
	Hash       string         `json:"hash"`
}

// canonicalDetails returns the canonical byte encoding of a details map.
// encoding/json sorts map keys at every nesting level, so logically equal
// maps always produce identical bytes. A nil map canonicalizes to "{}".
func canonicalDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		details = map[string]any{}
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal details: %w", err)
	}
	return b, nil
}

// hashEntry computes the SHA-256 content hash of an entry over the fixed
// field order: action, entityType, entityId, actorId, actorRole, details,
// timestamp, prevHash. Sequence is excluded — the hash must not depend on
// store-assigned ordering — but PrevHash closes the chain.
func hashEntry(e *Entry) (string, error) {
	details, err := canonicalDetails(e.Details)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%s",
		e.Action, e.EntityType, e.EntityID, e.ActorID, e.ActorRole,
		details, e.Timestamp.UTC().Format(time.RFC3339Nano), e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Recompute returns the entry's content hash recomputed from its stored
// fields. An intact entry satisfies Recompute() == Hash.
func (e *Entry) Recompute() (string, error) {
	return hashEntry(e)
}

// validate checks the required fields of a candidate record.
func (r Record) validate() error {
	switch {
	case r.Action == "":
		return &ValidationError{Field: "action"}
	case r.EntityType == "":
		return &ValidationError{Field: "entityType"}
	case r.EntityID == "":
		return &ValidationError{Field: "entityId"}
	case r.ActorID == "":
		return &ValidationError{Field: "actorId"}
	}
	return nil
}
