package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/docsearch-backend/internal/data/repos"
	"github.com/yungbote/docsearch-backend/internal/http/response"
	"github.com/yungbote/docsearch-backend/internal/services"
)

const defaultStuckAge = 30 * time.Minute

type RecoveryHandler struct {
	recovery services.RecoveryService
}

func NewRecoveryHandler(recovery services.RecoveryService) *RecoveryHandler {
	return &RecoveryHandler{recovery: recovery}
}

// GET /recovery/counts
func (h *RecoveryHandler) Counts(c *gin.Context) {
	counts, err := h.recovery.CountByStatus(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"counts": counts})
}

// GET /recovery/failed
func (h *RecoveryHandler) Failed(c *gin.Context) {
	f, err := failedFilterFromQuery(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	docs, err := h.recovery.ListFailed(c.Request.Context(), f)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"documents": docs, "count": len(docs)})
}

// GET /recovery/stuck?older_than=30m&limit=
func (h *RecoveryHandler) Stuck(c *gin.Context) {
	olderThan := defaultStuckAge
	if raw := strings.TrimSpace(c.Query("older_than")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("older_than must be a positive duration"))
			return
		}
		olderThan = d
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	docs, err := h.recovery.ListStuck(c.Request.Context(), olderThan, limit)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"documents": docs, "count": len(docs)})
}

type recoverRequest struct {
	DocumentIDs []uuid.UUID `json:"document_ids"`
	Action      string      `json:"action"`
}

// POST /recovery/recover
func (h *RecoveryHandler) Recover(c *gin.Context) {
	var req recoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	outcomes, err := h.recovery.Recover(c.Request.Context(), req.DocumentIDs, req.Action)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"action": req.Action, "outcomes": outcomes})
}

type failedFilterBody struct {
	Filename     string     `json:"filename"`
	Stage        string     `json:"stage"`
	BatchID      *uuid.UUID `json:"batch_id"`
	FailedAfter  *time.Time `json:"failed_after"`
	FailedBefore *time.Time `json:"failed_before"`
	Limit        int        `json:"limit"`
}

type reprocessBatchRequest struct {
	BatchSize    int              `json:"batch_size"`
	DelaySeconds float64          `json:"delay_seconds"`
	Filter       failedFilterBody `json:"filter"`
}

// POST /recovery/batch
//
// Runs synchronously; large selections should go through docctl instead.
func (h *RecoveryHandler) ReprocessBatch(c *gin.Context) {
	var req reprocessBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if req.DelaySeconds < 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("delay_seconds must be >= 0"))
		return
	}
	report, err := h.recovery.ReprocessBatch(c.Request.Context(), services.ReprocessRequest{
		Filter: repos.FailedFilter{
			FilenameContains: req.Filter.Filename,
			Stage:            req.Filter.Stage,
			FailedAfter:      req.Filter.FailedAfter,
			FailedBefore:     req.Filter.FailedBefore,
			BatchJobID:       req.Filter.BatchID,
			Limit:            req.Filter.Limit,
		},
		BatchSize: req.BatchSize,
		Delay:     time.Duration(req.DelaySeconds * float64(time.Second)),
	})
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, report)
}

func failedFilterFromQuery(c *gin.Context) (repos.FailedFilter, error) {
	f := repos.FailedFilter{
		FilenameContains: strings.TrimSpace(c.Query("filename")),
		Stage:            strings.TrimSpace(c.Query("stage")),
	}
	var err error
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		return f, err
	}
	if raw := strings.TrimSpace(c.Query("batch_id")); raw != "" {
		id, perr := uuid.Parse(raw)
		if perr != nil {
			return f, fmt.Errorf("invalid batch_id")
		}
		f.BatchJobID = &id
	}
	if f.FailedAfter, err = queryTime(c, "failed_after"); err != nil {
		return f, err
	}
	if f.FailedBefore, err = queryTime(c, "failed_before"); err != nil {
		return f, err
	}
	return f, nil
}

func queryTime(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC3339", key)
	}
	return &t, nil
}
