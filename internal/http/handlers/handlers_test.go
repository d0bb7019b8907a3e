package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/modules/search"
	apperr "github.com/yungbote/docsearch-backend/internal/pkg/errors"
	"github.com/yungbote/docsearch-backend/internal/services"
)

type fakeDocuments struct {
	services.DocumentService
	uploaded   services.UploadInput
	body       string
	registered services.RegisterInput
	err        error
	status     *services.DocumentStatus
}

func (f *fakeDocuments) result() *services.SubmitResult {
	return &services.SubmitResult{
		Document: &types.Document{ID: uuid.New(), Status: types.DocumentStatusPending},
		Job:      &types.JobRun{ID: uuid.New()},
	}
}

func (f *fakeDocuments) Upload(_ context.Context, in services.UploadInput) (*services.SubmitResult, error) {
	f.uploaded = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	if f.err != nil {
		return nil, f.err
	}
	return f.result(), nil
}

func (f *fakeDocuments) Register(_ context.Context, in services.RegisterInput) (*services.SubmitResult, error) {
	f.registered = in
	if f.err != nil {
		return nil, f.err
	}
	return f.result(), nil
}

func (f *fakeDocuments) Status(_ context.Context, id uuid.UUID) (*services.DocumentStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

type fakeSearch struct {
	got  search.Request
	resp *search.Response
	err  error
}

func (f *fakeSearch) Search(_ context.Context, req search.Request) (*search.Response, error) {
	f.got = req
	return f.resp, f.err
}

type fakeRecovery struct {
	services.RecoveryService
	ids    []uuid.UUID
	action string
}

func (f *fakeRecovery) Recover(_ context.Context, ids []uuid.UUID, action string) ([]services.RecoveryOutcome, error) {
	f.ids, f.action = ids, action
	if !services.ValidAction(action) {
		return nil, fmt.Errorf("%w: unknown action", apperr.ErrInvalidArgument)
	}
	out := make([]services.RecoveryOutcome, 0, len(ids))
	for _, id := range ids {
		out = append(out, services.RecoveryOutcome{DocumentID: id, Outcome: services.OutcomeSubmitted})
	}
	return out, nil
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func documentRouter(docs services.DocumentService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewDocumentHandler(docs)
	r := gin.New()
	r.POST("/documents", h.Create)
	r.GET("/documents/:id/status", h.Status)
	return r
}

func TestCreateDocumentMultipart(t *testing.T) {
	docs := &fakeDocuments{}
	r := documentRouter(docs)

	batchID := uuid.New()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "flyer.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write([]byte("%PDF-1.4 body"))
	_ = mw.WriteField("batch_id", batchID.String())
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(r, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if docs.uploaded.Filename != "flyer.pdf" {
		t.Fatalf("filename = %q", docs.uploaded.Filename)
	}
	if docs.uploaded.MimeType != "application/pdf" {
		t.Fatalf("mime = %q, want guessed application/pdf", docs.uploaded.MimeType)
	}
	if docs.uploaded.BatchID == nil || *docs.uploaded.BatchID != batchID {
		t.Fatalf("batch id not forwarded: %v", docs.uploaded.BatchID)
	}
	if docs.body != "%PDF-1.4 body" {
		t.Fatalf("body = %q", docs.body)
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["document_id"] == "" || out["job_id"] == nil || out["status"] != types.DocumentStatusPending {
		t.Fatalf("unexpected body: %v", out)
	}
}

func TestCreateDocumentRejectsBadBatchID(t *testing.T) {
	r := documentRouter(&fakeDocuments{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "a.png")
	_, _ = fw.Write([]byte("png"))
	_ = mw.WriteField("batch_id", "nope")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if rec := serve(r, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRegisterDocumentMapsServiceErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
		code string
	}{
		{fmt.Errorf("%w: x", apperr.ErrAlreadyInFlight), http.StatusConflict, "already_in_flight"},
		{fmt.Errorf("%w: image/tiff", apperr.ErrUnsupportedType), http.StatusUnsupportedMediaType, ""},
		{fmt.Errorf("%w: 60MB", apperr.ErrTooLarge), http.StatusRequestEntityTooLarge, ""},
		{errors.New("db down"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		docs := &fakeDocuments{err: tc.err}
		r := documentRouter(docs)
		body := `{"blob_handle":"mem://a","filename":"a.pdf","mime_type":"application/pdf","byte_size":10}`
		req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := serve(r, req)
		if rec.Code != tc.want {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
		if tc.code != "" && !strings.Contains(rec.Body.String(), tc.code) {
			t.Fatalf("%v: body %s missing code %s", tc.err, rec.Body.String(), tc.code)
		}
		if docs.registered.BlobHandle != "mem://a" {
			t.Fatalf("register input not bound: %+v", docs.registered)
		}
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	r := documentRouter(&fakeDocuments{err: errors.New("pq: password authentication failed")})
	req := httptest.NewRequest(http.MethodGet, "/documents/"+uuid.NewString()+"/status", nil)
	rec := serve(r, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
}

func TestDocumentStatusInvalidID(t *testing.T) {
	r := documentRouter(&fakeDocuments{})
	req := httptest.NewRequest(http.MethodGet, "/documents/not-a-uuid/status", nil)
	if rec := serve(r, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func searchRouter(s services.SearchService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSearchHandler(s, nil)
	r := gin.New()
	r.GET("/search", h.Search)
	return r
}

func TestSearchParsesQueryParameters(t *testing.T) {
	fs := &fakeSearch{resp: &search.Response{Results: []search.Result{}}}
	r := searchRouter(fs)

	url := "/search?q=town+hall&mode=keyword&filter_type=flyer&filter_year=2022&filter_location=Austin" +
		"&primary_category=Civic&subcategory=Meetings&sort_by=filename&sort_dir=asc&page=2&per_page=5"
	rec := serve(r, httptest.NewRequest(http.MethodGet, url, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	got := fs.got
	if got.Query != "town hall" || got.Mode != search.ModeKeyword {
		t.Fatalf("query/mode = %q/%q", got.Query, got.Mode)
	}
	if got.Filter.DocumentType != "flyer" || got.Filter.Location != "Austin" {
		t.Fatalf("filter = %+v", got.Filter)
	}
	if got.Filter.Year == nil || *got.Filter.Year != 2022 {
		t.Fatalf("year = %v", got.Filter.Year)
	}
	if got.Filter.PrimaryCategory != "Civic" || got.Filter.Subcategory != "Meetings" {
		t.Fatalf("categories = %+v", got.Filter)
	}
	if got.SortBy != search.SortFilename || got.SortDir != search.SortAsc || got.Page != 2 || got.PerPage != 5 {
		t.Fatalf("paging/sort = %+v", got)
	}
}

func TestSearchRejectsNonIntegerParams(t *testing.T) {
	for _, q := range []string{"page=two", "per_page=x", "filter_year=20x2"} {
		fs := &fakeSearch{}
		rec := serve(searchRouter(fs), httptest.NewRequest(http.MethodGet, "/search?q=a&"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestSearchRejectsExplicitZeroPaging(t *testing.T) {
	for _, q := range []string{"page=0", "per_page=0", "page=-1", "per_page=%20"} {
		fs := &fakeSearch{}
		rec := serve(searchRouter(fs), httptest.NewRequest(http.MethodGet, "/search?q=a&"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", q, rec.Code)
		}
		if fs.got.Query != "" {
			t.Fatalf("%s: search ran with %+v", q, fs.got)
		}
	}
}

func TestSearchValidationErrorIs400(t *testing.T) {
	fs := &fakeSearch{err: fmt.Errorf("%w: per_page above 100", apperr.ErrInvalidArgument)}
	rec := serve(searchRouter(fs), httptest.NewRequest(http.MethodGet, "/search?q=a&per_page=500", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSearchFailureStillAnswers200(t *testing.T) {
	fs := &fakeSearch{err: errors.New("connection reset")}
	rec := serve(searchRouter(fs), httptest.NewRequest(http.MethodGet, "/search?q=a", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp search.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == "" || len(resp.Results) != 0 {
		t.Fatalf("expected empty response with error, got %+v", resp)
	}
	if resp.Pagination.PerPage != search.DefaultPerPage || resp.Pagination.Page != 1 {
		t.Fatalf("pagination = %+v", resp.Pagination)
	}
}

func TestRecoverForwardsIDsAndAction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fr := &fakeRecovery{}
	h := NewRecoveryHandler(fr)
	r := gin.New()
	r.POST("/recovery/recover", h.Recover)

	id := uuid.New()
	body := fmt.Sprintf(`{"document_ids":[%q],"action":"retry"}`, id)
	req := httptest.NewRequest(http.MethodPost, "/recovery/recover", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(r, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if fr.action != services.ActionRetry || len(fr.ids) != 1 || fr.ids[0] != id {
		t.Fatalf("forwarded %v %q", fr.ids, fr.action)
	}

	req = httptest.NewRequest(http.MethodPost, "/recovery/recover", strings.NewReader(`{"document_ids":[],"action":"explode"}`))
	req.Header.Set("Content-Type", "application/json")
	if rec := serve(r, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown action status = %d, want 400", rec.Code)
	}
}

func TestStuckRejectsBadDuration(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewRecoveryHandler(&fakeRecovery{})
	r := gin.New()
	r.GET("/recovery/stuck", h.Stuck)
	rec := serve(r, httptest.NewRequest(http.MethodGet, "/recovery/stuck?older_than=soon", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func TestReadyReflectsDatabase(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, tc := range []struct {
		err  error
		want int
	}{{nil, http.StatusOK}, {errors.New("down"), http.StatusServiceUnavailable}} {
		h := NewHealthHandler(fakePinger{err: tc.err})
		r := gin.New()
		r.GET("/readyz", h.Ready)
		if rec := serve(r, httptest.NewRequest(http.MethodGet, "/readyz", nil)); rec.Code != tc.want {
			t.Fatalf("ready with err=%v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}
