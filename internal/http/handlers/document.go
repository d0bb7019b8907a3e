package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/docsearch-backend/internal/http/response"
	apperr "github.com/yungbote/docsearch-backend/internal/pkg/errors"
	"github.com/yungbote/docsearch-backend/internal/services"
)

type DocumentHandler struct {
	documents services.DocumentService
}

func NewDocumentHandler(documents services.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

type submitResponse struct {
	DocumentID uuid.UUID  `json:"document_id"`
	Status     string     `json:"status"`
	JobID      *uuid.UUID `json:"job_id,omitempty"`
	Document   any        `json:"document,omitempty"`
}

// POST /documents
//
// multipart/form-data with a "file" part uploads the bytes; a JSON body
// registers a blob that is already stored.
func (h *DocumentHandler) Create(c *gin.Context) {
	var (
		res *services.SubmitResult
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		res, err = h.upload(c)
	} else {
		var in services.RegisterInput
		if bindErr := c.ShouldBindJSON(&in); bindErr != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_body", bindErr)
			return
		}
		res, err = h.documents.Register(c.Request.Context(), in)
	}
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			err = fmt.Errorf("%w: limit is %d bytes", apperr.ErrTooLarge, tooBig.Limit)
		}
		response.RespondServiceError(c, err)
		return
	}
	out := submitResponse{DocumentID: res.Document.ID, Status: res.Document.Status, Document: res.Document}
	if res.Job != nil {
		out.JobID = &res.Job.ID
	}
	response.RespondAccepted(c, out)
}

func (h *DocumentHandler) upload(c *gin.Context) (*services.SubmitResult, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: missing file part", apperr.ErrInvalidArgument)
	}
	var batchID *uuid.UUID
	if raw := strings.TrimSpace(c.PostForm("batch_id")); raw != "" {
		id, perr := uuid.Parse(raw)
		if perr != nil {
			return nil, fmt.Errorf("%w: invalid batch_id", apperr.ErrInvalidArgument)
		}
		batchID = &id
	}
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		if guess := mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename))); guess != "" {
			mimeType = guess
		}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return h.documents.Upload(c.Request.Context(), services.UploadInput{
		Filename: fh.Filename,
		MimeType: mimeType,
		Size:     fh.Size,
		Body:     f,
		BatchID:  batchID,
	})
}

// GET /documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	detail, err := h.documents.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, detail)
}

// GET /documents/:id/status
func (h *DocumentHandler) Status(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	st, err := h.documents.Status(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, st)
}

// POST /documents/:id/reprocess
func (h *DocumentHandler) Reprocess(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	job, err := h.documents.Reprocess(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	out := submitResponse{DocumentID: id, Status: "queued"}
	if job != nil {
		out.JobID = &job.ID
	}
	response.RespondAccepted(c, out)
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(param)))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid %s", param))
		return uuid.Nil, false
	}
	return id, true
}
