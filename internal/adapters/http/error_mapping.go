package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/docvault/internal/core/domain"
)

var errMissingOwner = domain.WrapError(domain.ErrUnauthorized, "resolve owner", errors.New(ownerHeader+" header is required"))

var statusByKind = map[error]int{
	domain.ErrInvalidInput:     http.StatusBadRequest,
	domain.ErrUnauthorized:     http.StatusUnauthorized,
	domain.ErrDocumentNotFound: http.StatusNotFound,
	domain.ErrRuleNotFound:     http.StatusNotFound,
	domain.ErrConflict:         http.StatusConflict,
	domain.ErrTemporary:        http.StatusServiceUnavailable,
}

func mapErrorToHTTPStatus(err error) int {
	if status, ok := statusByKind[domain.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError hides internal error text behind a generic message for 5xx,
// except 503 where the cause tells the client what to retry.
func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, map[string]string{"error": message})
}
