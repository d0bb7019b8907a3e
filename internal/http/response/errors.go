package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperr "github.com/yungbote/docsearch-backend/internal/pkg/errors"
	"github.com/yungbote/docsearch-backend/internal/platform/apierr"
)

var sentinelStatus = []struct {
	err    error
	status int
	code   string
}{
	{apperr.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperr.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{apperr.ErrTooLarge, http.StatusRequestEntityTooLarge, "too_large"},
	{apperr.ErrUnsupportedType, http.StatusUnsupportedMediaType, "unsupported_type"},
	{apperr.ErrAlreadyInFlight, http.StatusConflict, "already_in_flight"},
	{apperr.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{apperr.ErrConflict, http.StatusConflict, "conflict"},
	{apperr.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
}

// StatusFor maps a service error onto an HTTP status and error code.
func StatusFor(err error) (int, string) {
	if ae, ok := apierr.As(err); ok && ae.Status != 0 {
		return ae.Status, ae.Code
	}
	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			return s.status, s.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// RespondServiceError writes err with the status its sentinel implies.
// Unclassified errors are reported without their message.
func RespondServiceError(c *gin.Context, err error) {
	status, code := StatusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		RespondError(c, status, code, errors.New("internal error"))
		return
	}
	RespondError(c, status, code, err)
}
