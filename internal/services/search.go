package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/docsearch-backend/internal/data/repos"
	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/modules/search"
	apperr "github.com/yungbote/docsearch-backend/internal/pkg/errors"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

type SearchService interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

type searchService struct {
	log    *logger.Logger
	engine *search.Engine
}

func NewSearchService(baseLog *logger.Logger, engine *search.Engine) SearchService {
	return &searchService{log: baseLog.With("service", "SearchService"), engine: engine}
}

// Search maps request validation errors onto ErrInvalidArgument. Every other
// failure is carried inside the response.
func (s *searchService) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	resp, err := s.engine.Search(ctx, req)
	if err != nil {
		if errors.Is(err, search.ErrInvalidRequest) {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err)
		}
		return nil, err
	}
	if resp.Degraded || resp.Error != "" {
		s.log.Warn("search served degraded",
			"mode", resp.Mode,
			"effective_mode", resp.EffectiveMode,
			"error", resp.Error,
		)
	}
	return resp, nil
}

type FeedbackInput struct {
	Query      string    `json:"query"`
	Mode       string    `json:"mode"`
	DocumentID uuid.UUID `json:"document_id"`
	Relevant   bool      `json:"relevant"`
	Position   int       `json:"position"`
	Comment    string    `json:"comment"`
}

const maxFeedbackComment = 2000

type FeedbackService interface {
	Record(ctx context.Context, in FeedbackInput) (*types.SearchFeedback, error)
	ListForDocument(ctx context.Context, documentID uuid.UUID, limit int) ([]*types.SearchFeedback, error)
}

type feedbackService struct {
	log      *logger.Logger
	docs     repos.DocumentRepo
	feedback repos.SearchFeedbackRepo
}

func NewFeedbackService(baseLog *logger.Logger, docs repos.DocumentRepo, feedback repos.SearchFeedbackRepo) FeedbackService {
	return &feedbackService{log: baseLog.With("service", "FeedbackService"), docs: docs, feedback: feedback}
}

func (s *feedbackService) Record(ctx context.Context, in FeedbackInput) (*types.SearchFeedback, error) {
	q := strings.TrimSpace(in.Query)
	if q == "" {
		return nil, fmt.Errorf("%w: query is required", apperr.ErrInvalidArgument)
	}
	if in.DocumentID == uuid.Nil {
		return nil, fmt.Errorf("%w: document_id is required", apperr.ErrInvalidArgument)
	}
	if in.Position < 0 {
		return nil, fmt.Errorf("%w: position must not be negative", apperr.ErrInvalidArgument)
	}
	comment := strings.TrimSpace(in.Comment)
	if r := []rune(comment); len(r) > maxFeedbackComment {
		comment = string(r[:maxFeedbackComment])
	}
	dbc := dbctx.New(ctx)
	doc, err := s.docs.GetByID(dbc, in.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.ErrNotFound
	}
	row := &types.SearchFeedback{
		Query:      q,
		Mode:       strings.TrimSpace(in.Mode),
		DocumentID: in.DocumentID,
		Relevant:   in.Relevant,
		Position:   in.Position,
		Comment:    comment,
	}
	if _, err := s.feedback.Create(dbc, []*types.SearchFeedback{row}); err != nil {
		return nil, err
	}
	s.log.Debug("search feedback recorded", "document_id", in.DocumentID, "relevant", in.Relevant)
	return row, nil
}

func (s *feedbackService) ListForDocument(ctx context.Context, documentID uuid.UUID, limit int) ([]*types.SearchFeedback, error) {
	return s.feedback.ListByDocument(dbctx.New(ctx), documentID, limit)
}
