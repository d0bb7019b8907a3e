package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/docsearch-backend/internal/http/response"
	"github.com/yungbote/docsearch-backend/internal/services"
)

type BatchHandler struct {
	batches services.BatchService
}

func NewBatchHandler(batches services.BatchService) *BatchHandler {
	return &BatchHandler{batches: batches}
}

type createBatchRequest struct {
	Name string `json:"name"`
}

// POST /batches
func (h *BatchHandler) Create(c *gin.Context) {
	var req createBatchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
			return
		}
	}
	b, err := h.batches.Create(c.Request.Context(), req.Name)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, b)
}

// GET /batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	b, err := h.batches.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, b)
}
