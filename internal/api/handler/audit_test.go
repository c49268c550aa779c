package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/civicworks/civicledger/internal/api/handler"
	"github.com/civicworks/civicledger/internal/ledger"
)

var testSecret = []byte("test-secret")

func setupRouter(t *testing.T, store ledger.ChainStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()

	m := ledger.NewManager(store, zap.NewNop())
	v := ledger.NewVerifier(store)
	h := handler.NewAuditHandler(m, v, store, zap.NewNop())

	v1 := r.Group("/api/v1")
	h.Register(v1, handler.RequireAuth(testSecret))
	return r
}

func token(t *testing.T, actorID, role string) string {
	t.Helper()
	tok, err := handler.IssueActorToken(testSecret, actorID, role, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func doAppend(t *testing.T, r *gin.Engine, tok string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audit/entries", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAppend_201(t *testing.T) {
	r := setupRouter(t, ledger.NewMemoryStore())

	w := doAppend(t, r, token(t, "u1", "admin"), map[string]any{
		"action":      "CREATE",
		"entity_type": "project",
		"entity_id":   "p1",
		"details":     map[string]any{"name": "Road A"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var entry ledger.Entry
	if err := json.Unmarshal(w.Body.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Sequence != 1 || entry.PrevHash != ledger.GenesisHash {
		t.Errorf("entry: seq=%d prev=%q", entry.Sequence, entry.PrevHash)
	}
	if entry.ActorID != "u1" || entry.ActorRole != "admin" {
		t.Errorf("actor must come from the token, got %q/%q", entry.ActorID, entry.ActorRole)
	}
}

func TestAppend_401_withoutToken(t *testing.T) {
	r := setupRouter(t, ledger.NewMemoryStore())

	w := doAppend(t, r, "", map[string]any{
		"action": "CREATE", "entity_type": "project", "entity_id": "p1",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAppend_400_missingField(t *testing.T) {
	r := setupRouter(t, ledger.NewMemoryStore())

	w := doAppend(t, r, token(t, "u1", "admin"), map[string]any{
		"action": "CREATE", "entity_type": "project",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestVerify_200_intact(t *testing.T) {
	store := ledger.NewMemoryStore()
	r := setupRouter(t, store)

	doAppend(t, r, token(t, "u1", "admin"), map[string]any{
		"action": "CREATE", "entity_type": "project", "entity_id": "p1",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/verify", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "u9", "admin"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res ledger.VerificationResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Intact || res.TotalEntries != 1 {
		t.Errorf("result: %+v", res)
	}
}

func TestVerify_403_nonAdmin(t *testing.T) {
	r := setupRouter(t, ledger.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/verify", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "u1", "viewer"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

// tamperedStore streams a chain whose second entry does not re-hash,
// standing in for out-of-band datastore tampering.
type tamperedStore struct {
	*ledger.MemoryStore
}

func (s *tamperedStore) StreamAll(ctx context.Context, fn func(*ledger.Entry) error) error {
	return s.MemoryStore.StreamAll(ctx, func(e *ledger.Entry) error {
		if e.Sequence == 2 {
			e.Details = map[string]any{"amount": 999999.0}
		}
		return fn(e)
	})
}

func TestVerify_200_reportsTampering(t *testing.T) {
	inner := ledger.NewMemoryStore()
	store := &tamperedStore{MemoryStore: inner}
	r := setupRouter(t, store)

	adminTok := token(t, "u1", "admin")
	for _, id := range []string{"p1", "p2", "p3"} {
		doAppend(t, r, adminTok, map[string]any{
			"action": "CREATE", "entity_type": "project", "entity_id": id,
			"details": map[string]any{"amount": 5000.0},
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/verify", nil)
	req.Header.Set("Authorization", "Bearer "+adminTok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("tampering is a 200 with intact=false, got %d", w.Code)
	}
	var res ledger.VerificationResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Intact || res.BrokenAtSequence != 2 || res.Reason != ledger.ReasonContentTampered {
		t.Errorf("result: %+v", res)
	}
}

func TestTip_public(t *testing.T) {
	r := setupRouter(t, ledger.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/tip", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var tip ledger.Tip
	if err := json.Unmarshal(w.Body.Bytes(), &tip); err != nil {
		t.Fatal(err)
	}
	if tip != ledger.GenesisTip {
		t.Errorf("empty ledger tip: %+v", tip)
	}
}

func TestListEntries_limit(t *testing.T) {
	store := ledger.NewMemoryStore()
	r := setupRouter(t, store)

	tok := token(t, "u1", "admin")
	for _, id := range []string{"p1", "p2", "p3"} {
		doAppend(t, r, tok, map[string]any{
			"action": "CREATE", "entity_type": "project", "entity_id": id,
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/entries?limit=2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var page struct {
		Entries []ledger.Entry `json:"entries"`
		Count   int            `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Count != 2 || len(page.Entries) != 2 {
		t.Errorf("expected 2 entries, got %d", page.Count)
	}
	if page.Entries[0].Sequence != 1 || page.Entries[1].Sequence != 2 {
		t.Error("entries not in ascending sequence order")
	}
}

func TestGetEntry_404(t *testing.T) {
	r := setupRouter(t, ledger.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/entries/42", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetEntry_400_invalidSeq(t *testing.T) {
	r := setupRouter(t, ledger.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/entries/abc", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
