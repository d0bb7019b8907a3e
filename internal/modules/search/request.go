package search

import (
	"errors"
	"fmt"
	"strings"

	types "github.com/yungbote/docsearch-backend/internal/domain"
)

type Mode string

const (
	ModeKeyword Mode = "keyword"
	ModeVector  Mode = "vector"
	ModeHybrid  Mode = "hybrid"
)

type SortBy string

const (
	SortRelevance  SortBy = "relevance"
	SortUploadDate SortBy = "upload_date"
	SortFilename   SortBy = "filename"
)

type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// ErrInvalidRequest wraps every validation failure.
var ErrInvalidRequest = errors.New("invalid search request")

type Request struct {
	Query   string
	Mode    Mode
	Filter  types.SearchFilter
	SortBy  SortBy
	SortDir SortDir
	Page    int
	PerPage int
}

// Normalize fills defaults and rejects out-of-range values. Page and
// PerPage of zero mean "unset".
func (r Request) Normalize() (Request, error) {
	out := r
	out.Query = strings.TrimSpace(r.Query)

	switch Mode(strings.ToLower(strings.TrimSpace(string(r.Mode)))) {
	case "":
		out.Mode = ModeHybrid
	case ModeKeyword:
		out.Mode = ModeKeyword
	case ModeVector:
		out.Mode = ModeVector
	case ModeHybrid:
		out.Mode = ModeHybrid
	default:
		return r, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}

	switch SortBy(strings.ToLower(strings.TrimSpace(string(r.SortBy)))) {
	case "":
		out.SortBy = SortRelevance
	case SortRelevance:
		out.SortBy = SortRelevance
	case SortUploadDate:
		out.SortBy = SortUploadDate
	case SortFilename:
		out.SortBy = SortFilename
	default:
		return r, fmt.Errorf("%w: unknown sort_by %q", ErrInvalidRequest, r.SortBy)
	}

	switch SortDir(strings.ToLower(strings.TrimSpace(string(r.SortDir)))) {
	case "":
		out.SortDir = defaultDir(out.SortBy)
	case SortAsc:
		out.SortDir = SortAsc
	case SortDesc:
		out.SortDir = SortDesc
	default:
		return r, fmt.Errorf("%w: unknown sort_dir %q", ErrInvalidRequest, r.SortDir)
	}

	switch {
	case r.Page == 0:
		out.Page = 1
	case r.Page < 0:
		return r, fmt.Errorf("%w: page must be >= 1", ErrInvalidRequest)
	}
	switch {
	case r.PerPage == 0:
		out.PerPage = DefaultPerPage
	case r.PerPage < 1 || r.PerPage > MaxPerPage:
		return r, fmt.Errorf("%w: per_page must be between 1 and %d", ErrInvalidRequest, MaxPerPage)
	}
	if r.Filter.Year != nil && (*r.Filter.Year < 1000 || *r.Filter.Year > 2999) {
		return r, fmt.Errorf("%w: year out of range", ErrInvalidRequest)
	}
	return out, nil
}

func defaultDir(by SortBy) SortDir {
	if by == SortFilename {
		return SortAsc
	}
	return SortDesc
}
