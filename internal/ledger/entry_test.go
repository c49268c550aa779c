package ledger

import (
	"strings"
	"testing"
	"time"
)

func baseEntry() *Entry {
	return &Entry{
		Action:     "CREATE",
		EntityType: "project",
		EntityID:   "p1",
		ActorID:    "u1",
		ActorRole:  "admin",
		Details:    map[string]any{"name": "Road A", "budget": 5000.0},
		Timestamp:  time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC),
		PrevHash:   GenesisHash,
	}
}

func TestHashEntry_deterministic(t *testing.T) {
	e := baseEntry()
	h1, err := hashEntry(e)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := hashEntry(e)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hash not deterministic: %q vs %q", h1, h2)
	}
	if len(h1) != 64 || strings.ToLower(h1) != h1 {
		t.Errorf("expected 64 lowercase hex chars, got %q", h1)
	}
}

func TestHashEntry_detailsKeyOrderIrrelevant(t *testing.T) {
	e1 := baseEntry()
	e1.Details = map[string]any{"a": 1.0, "b": "x", "nested": map[string]any{"k1": true, "k2": "v"}}

	// Same logical content, different insertion order.
	e2 := baseEntry()
	e2.Details = map[string]any{}
	e2.Details["nested"] = map[string]any{"k2": "v", "k1": true}
	e2.Details["b"] = "x"
	e2.Details["a"] = 1.0

	h1, _ := hashEntry(e1)
	h2, _ := hashEntry(e2)
	if h1 != h2 {
		t.Errorf("logically equal details hash differently: %q vs %q", h1, h2)
	}
}

func TestHashEntry_nilDetailsEqualsEmpty(t *testing.T) {
	e1 := baseEntry()
	e1.Details = nil
	e2 := baseEntry()
	e2.Details = map[string]any{}

	h1, _ := hashEntry(e1)
	h2, _ := hashEntry(e2)
	if h1 != h2 {
		t.Errorf("nil details should canonicalize like empty map: %q vs %q", h1, h2)
	}
}

func TestHashEntry_sensitiveToEveryHashedField(t *testing.T) {
	base, _ := hashEntry(baseEntry())

	mutations := map[string]func(*Entry){
		"action":      func(e *Entry) { e.Action = "UPDATE" },
		"entity_type": func(e *Entry) { e.EntityType = "disbursement" },
		"entity_id":   func(e *Entry) { e.EntityID = "p2" },
		"actor_id":    func(e *Entry) { e.ActorID = "u2" },
		"actor_role":  func(e *Entry) { e.ActorRole = "viewer" },
		"details":     func(e *Entry) { e.Details["name"] = "Road B" },
		"timestamp":   func(e *Entry) { e.Timestamp = e.Timestamp.Add(time.Microsecond) },
		"prev_hash":   func(e *Entry) { e.PrevHash = strings.Repeat("f", 64) },
	}
	for field, mutate := range mutations {
		e := baseEntry()
		mutate(e)
		h, err := hashEntry(e)
		if err != nil {
			t.Fatalf("%s: %v", field, err)
		}
		if h == base {
			t.Errorf("mutating %s did not change the hash", field)
		}
	}
}

func TestHashEntry_sequenceExcluded(t *testing.T) {
	e1 := baseEntry()
	e1.Sequence = 1
	e2 := baseEntry()
	e2.Sequence = 99

	h1, _ := hashEntry(e1)
	h2, _ := hashEntry(e2)
	if h1 != h2 {
		t.Error("sequence must not participate in the content hash")
	}
}

func TestHashEntry_stableAcrossTimestampRoundTrip(t *testing.T) {
	// Microsecond-truncated timestamps survive an RFC3339Nano (and
	// timestamptz) round trip without changing the hash.
	e := baseEntry()
	e.Timestamp = time.Now().UTC().Truncate(time.Microsecond)
	before, _ := hashEntry(e)

	parsed, err := time.Parse(time.RFC3339Nano, e.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		t.Fatal(err)
	}
	e.Timestamp = parsed
	after, _ := hashEntry(e)

	if before != after {
		t.Errorf("hash changed across timestamp round trip: %q vs %q", before, after)
	}
}

func TestRecompute_matchesStoredHash(t *testing.T) {
	e := baseEntry()
	h, err := hashEntry(e)
	if err != nil {
		t.Fatal(err)
	}
	e.Hash = h

	got, err := e.Recompute()
	if err != nil {
		t.Fatal(err)
	}
	if got != e.Hash {
		t.Errorf("Recompute() = %q, want stored hash %q", got, e.Hash)
	}
}
