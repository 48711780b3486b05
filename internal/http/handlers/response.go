package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/tbourn/go-mod-mirror/internal/domain"
	"github.com/tbourn/go-mod-mirror/internal/http/middleware"
	"github.com/tbourn/go-mod-mirror/internal/services"
)

// Response conventions:
//
//	200  origin-shaped body, Trustable: true|false
//	202  forced refresh scheduled, Trustable: false, code refresh_accepted
//	404  not_cached (no record yet, refresh scheduled) or not_found
//	     (upstream said it does not exist)
//	4xx/5xx  ErrorResponse with a stable code from errors.go

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code    string `json:"code" example:"not_cached"`
	Message string `json:"message" example:"not cached yet, refresh scheduled"`
}

// HeaderTrustable tells clients whether every entity in the response is
// within its freshness window.
const HeaderTrustable = "Trustable"

// fail aborts with an ErrorResponse. 5xx answers are logged with the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router answer fallbacks with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// setTrust writes the Trustable header. Untrustable answers are marked
// no-cache so neither the memoizer nor downstream caches keep them.
func setTrust(c *gin.Context, trustable bool) {
	c.Header(HeaderTrustable, strconv.FormatBool(trustable))
	if !trustable {
		c.Header("Cache-Control", "no-cache")
	}
}

// accepted answers a forced refresh without reading the store.
func accepted(c *gin.Context) {
	setTrust(c, false)
	fail(c, http.StatusAccepted, ErrCodeRefreshAccepted, "refresh scheduled")
}

// lookupError maps a service error to a response.
func lookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidIdentity):
		fail(c, http.StatusBadRequest, ErrCodeInvalidIdentity, err.Error())
	case errors.Is(err, services.ErrEmptyBatch),
		errors.Is(err, services.ErrBatchTooLarge),
		errors.Is(err, services.ErrUnsupportedAlgorithm):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrBadCursor):
		fail(c, http.StatusBadRequest, ErrCodeBadCursor, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeLookupFailed, err.Error())
	}
}

// payload returns the stored origin JSON, or fallback for records that were
// written without one.
func payload(raw datatypes.JSON, fallback any) any {
	if len(raw) == 0 {
		return fallback
	}
	return json.RawMessage(raw)
}

func payloads[E any](items []E, raw func(E) datatypes.JSON) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		out = append(out, payload(raw(it), it))
	}
	return out
}

// writePoint renders a single-entity lookup. render is only called with a
// found record.
func writePoint[E any](c *gin.Context, res services.Result[E], render func(*E) any) {
	if res.Accepted {
		accepted(c)
		return
	}
	setTrust(c, res.Trustable)
	switch {
	case res.Item != nil:
		ok(c, http.StatusOK, render(res.Item))
	case res.Status == domain.StatusNegative:
		fail(c, http.StatusNotFound, ErrCodeNotFound, "not found upstream")
	default:
		fail(c, http.StatusNotFound, ErrCodeNotCached, "not cached yet, refresh scheduled")
	}
}

// writeListing renders the children of one parent. A listing of an unknown
// or deleted parent is an error, as upstream answers it.
func writeListing[E any](c *gin.Context, l services.Listing[E], render func(services.Listing[E]) any) {
	if l.Accepted {
		accepted(c)
		return
	}
	setTrust(c, l.Trustable)
	switch l.Status {
	case domain.StatusNegative:
		fail(c, http.StatusNotFound, ErrCodeNotFound, "not found upstream")
	case domain.StatusMissing:
		fail(c, http.StatusNotFound, ErrCodeNotCached, "not cached yet, refresh scheduled")
	default:
		ok(c, http.StatusOK, render(l))
	}
}

// passthrough relays an origin search response untouched. The force flag is
// the mirror's own and never forwarded.
func passthrough(c *gin.Context, search func(context.Context, url.Values) ([]byte, error)) {
	q := c.Request.URL.Query()
	q.Del("force")
	body, err := search(c.Request.Context(), q)
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("search passthrough failed")
		fail(c, http.StatusBadGateway, ErrCodeUpstreamUnavailable, "upstream search unavailable")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}
