package response

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/pulse-live/backend/internal/apperr"
)

// Error maps a domain error to the matching HTTP response. Unclassified
// errors become 500 with a generic message so internals never leak.
func Error(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) || e.Kind == apperr.KindInternal {
		Internal(c, "internal error")
		return
	}
	switch e.Kind {
	case apperr.KindNotFound:
		NotFound(c, e.Message)
	case apperr.KindForbidden:
		Forbidden(c, e.Message)
	case apperr.KindInvalidArgument:
		BadRequest(c, e.Message)
	case apperr.KindPollInactive:
		Gone(c, e.Message)
	case apperr.KindConflict:
		Conflict(c, e.Message)
	default:
		Internal(c, "internal error")
	}
}
