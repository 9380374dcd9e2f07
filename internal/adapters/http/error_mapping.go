package httpadapter

import (
	"net/http"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrDimensionMismatch):
		return http.StatusInternalServerError
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrProviderFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicErrorMessage hides internal causes behind 5xx responses.
func publicErrorMessage(status int, err error) string {
	switch {
	case status < 500:
		return err.Error()
	case status == http.StatusServiceUnavailable:
		return "upstream temporarily unavailable"
	default:
		return "internal error"
	}
}
