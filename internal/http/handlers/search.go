package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/http/response"
	"github.com/yungbote/docsearch-backend/internal/modules/search"
	apperr "github.com/yungbote/docsearch-backend/internal/pkg/errors"
	"github.com/yungbote/docsearch-backend/internal/services"
)

type SearchHandler struct {
	search   services.SearchService
	feedback services.FeedbackService
}

func NewSearchHandler(search services.SearchService, feedback services.FeedbackService) *SearchHandler {
	return &SearchHandler{search: search, feedback: feedback}
}

// GET /search
//
// Validation problems are 400s. Anything else still answers 200 with an
// empty result set and the error field populated.
func (h *SearchHandler) Search(c *gin.Context) {
	req, err := parseSearchRequest(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	resp, err := h.search.Search(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidArgument) {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
		_ = c.Error(err)
		response.RespondOK(c, emptySearchResponse(req, "search is temporarily unavailable"))
		return
	}
	response.RespondOK(c, resp)
}

func parseSearchRequest(c *gin.Context) (search.Request, error) {
	req := search.Request{
		Query:   c.Query("q"),
		Mode:    search.Mode(strings.TrimSpace(c.Query("mode"))),
		SortBy:  search.SortBy(strings.TrimSpace(c.Query("sort_by"))),
		SortDir: search.SortDir(strings.TrimSpace(c.Query("sort_dir"))),
		Filter: types.SearchFilter{
			DocumentType:    strings.TrimSpace(c.Query("filter_type")),
			Location:        strings.TrimSpace(c.Query("filter_location")),
			PrimaryCategory: strings.TrimSpace(c.Query("primary_category")),
			Subcategory:     strings.TrimSpace(c.Query("subcategory")),
		},
	}
	var err error
	if req.Page, err = positiveQueryInt(c, "page"); err != nil {
		return req, err
	}
	if req.PerPage, err = positiveQueryInt(c, "per_page"); err != nil {
		return req, err
	}
	if raw := strings.TrimSpace(c.Query("filter_year")); raw != "" {
		y, perr := strconv.Atoi(raw)
		if perr != nil {
			return req, fmt.Errorf("filter_year must be an integer")
		}
		req.Filter.Year = &y
	}
	return req, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

// positiveQueryInt returns 0 only when key is absent; search.Request reads
// 0 as unset, so an explicit value must be at least 1.
func positiveQueryInt(c *gin.Context, key string) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be >= 1", key)
	}
	return n, nil
}

func emptySearchResponse(req search.Request, msg string) *search.Response {
	page, perPage := req.Page, req.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = search.DefaultPerPage
	}
	return &search.Response{
		Query:         strings.TrimSpace(req.Query),
		Mode:          req.Mode,
		EffectiveMode: req.Mode,
		Results:       []search.Result{},
		Pagination:    search.Pagination{Page: page, PerPage: perPage},
		Error:         msg,
	}
}

// POST /search/feedback
func (h *SearchHandler) Feedback(c *gin.Context) {
	var in services.FeedbackInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	fb, err := h.feedback.Record(c.Request.Context(), in)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, fb)
}

// GET /documents/:id/feedback
func (h *SearchHandler) ListFeedback(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	rows, err := h.feedback.ListForDocument(c.Request.Context(), id, limit)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"feedback": rows})
}
