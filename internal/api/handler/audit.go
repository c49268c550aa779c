package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/civicworks/civicledger/internal/ledger"
)

// defaultListLimit caps GET /audit/entries when no limit is given.
const defaultListLimit = 1000

// AuditHandler exposes the ledger's append and verification operations over
// HTTP. Route handlers of the surrounding application call the append
// endpoint after their own domain mutation has committed; the ledger never
// participates in the domain transaction.
type AuditHandler struct {
	manager  *ledger.Manager
	verifier *ledger.Verifier
	store    ledger.ChainStore
	logger   *zap.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(manager *ledger.Manager, verifier *ledger.Verifier, store ledger.ChainStore, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{manager: manager, verifier: verifier, store: store, logger: logger}
}

// Register mounts the audit routes on the given router group. auth guards
// the append endpoint; verification additionally requires the admin role.
func (h *AuditHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	a := rg.Group("/audit")
	{
		a.POST("/entries", auth, h.Append)
		a.GET("/verify", auth, RequireRole("admin"), h.Verify)
		a.GET("/tip", h.Tip)
		a.GET("/entries", h.ListEntries)
		a.GET("/entries/:seq", h.GetEntry)
	}
}

// appendRequest is the payload for POST /audit/entries. Actor identity is
// taken from the authenticated token, never from the body.
type appendRequest struct {
	Action     string         `json:"action" binding:"required"`
	EntityType string         `json:"entity_type" binding:"required"`
	EntityID   string         `json:"entity_id" binding:"required"`
	Details    map[string]any `json:"details"`
}

// Append handles POST /audit/entries.
func (h *AuditHandler) Append(c *gin.Context) {
	var req appendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor, ok := ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing actor identity"})
		return
	}

	entry, err := h.manager.Append(c.Request.Context(), ledger.Record{
		Action:     req.Action,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Details:    req.Details,
	})
	if err != nil {
		h.renderAppendError(c, err)
		return
	}

	RecordAppend(entry.Action)
	c.JSON(http.StatusCreated, entry)
}

func (h *AuditHandler) renderAppendError(c *gin.Context, err error) {
	var validation *ledger.ValidationError
	var contention *ledger.ContentionError
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
	case errors.As(err, &contention):
		// Retryable: the entry was not persisted.
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit ledger under contention, retry"})
	default:
		h.logger.Error("audit append failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "audit ledger unavailable"})
	}
}

// Verify handles GET /audit/verify. An intact=false result is still a 200 —
// tampering is the reportable outcome, not a server fault.
func (h *AuditHandler) Verify(c *gin.Context) {
	res, err := h.verifier.Verify(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger verification failed to run", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "audit ledger unavailable"})
		return
	}

	RecordVerification(res.Intact)
	if !res.Intact {
		h.logger.Warn("audit ledger integrity check FAILED",
			zap.Int64("broken_at_sequence", res.BrokenAtSequence),
			zap.String("reason", string(res.Reason)),
		)
	}
	c.JSON(http.StatusOK, res)
}

// Tip handles GET /audit/tip.
func (h *AuditHandler) Tip(c *gin.Context) {
	tip, err := h.store.ReadTip(c.Request.Context())
	if err != nil {
		h.logger.Error("read tip", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "audit ledger unavailable"})
		return
	}
	c.JSON(http.StatusOK, tip)
}

// ListEntries handles GET /audit/entries?limit=N.
func (h *AuditHandler) ListEntries(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries := make([]*ledger.Entry, 0, min(limit, 64))
	err := h.store.StreamAll(c.Request.Context(), func(e *ledger.Entry) error {
		if len(entries) >= limit {
			return errListFull
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil && !errors.Is(err, errListFull) {
		h.logger.Error("stream entries", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "audit ledger unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

var errListFull = errors.New("list limit reached")

// GetEntry handles GET /audit/entries/:seq.
func (h *AuditHandler) GetEntry(c *gin.Context) {
	seq, err := strconv.ParseInt(c.Param("seq"), 10, 64)
	if err != nil || seq < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seq must be a positive integer"})
		return
	}

	getter, ok := h.store.(ledger.EntryGetter)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "store does not support point reads"})
		return
	}

	entry, err := getter.GetEntry(c.Request.Context(), seq)
	if errors.Is(err, ledger.ErrEntryNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	if err != nil {
		h.logger.Error("get entry", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "audit ledger unavailable"})
		return
	}
	c.JSON(http.StatusOK, entry)
}
