package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/docsearch-backend/internal/http/response"
	"github.com/yungbote/docsearch-backend/internal/services"
)

type TaxonomyHandler struct {
	taxonomy services.TaxonomyService
}

func NewTaxonomyHandler(taxonomy services.TaxonomyService) *TaxonomyHandler {
	return &TaxonomyHandler{taxonomy: taxonomy}
}

// GET /taxonomy
func (h *TaxonomyHandler) View(c *gin.Context) {
	terms, err := h.taxonomy.View(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"terms": terms})
}

// GET /taxonomy/expand?q=
func (h *TaxonomyHandler) Expand(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	q := c.Query("q")
	phrases, err := h.taxonomy.Expand(c.Request.Context(), q, limit)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	if phrases == nil {
		phrases = []string{}
	}
	response.RespondOK(c, gin.H{"query": q, "expansions": phrases})
}

// POST /taxonomy/terms (admin)
func (h *TaxonomyHandler) AddTerm(c *gin.Context) {
	var in services.AddTermInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	term, err := h.taxonomy.AddTerm(c.Request.Context(), in)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, term)
}
