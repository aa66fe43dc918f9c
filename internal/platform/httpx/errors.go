// Package httpx provides HTTP response utilities following RFC7807.
package httpx

import (
	"errors"
	"net/http"

	"github.com/mirador-hq/mirador/internal/shared"
)

// RespondError maps the billing error taxonomy to RFC7807 problem responses.
// Validation, not-found and conflict errors keep their detail so the caller
// can correct the request; dependency and unknown failures do not leak internals.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrDependency):
		Problem(w, http.StatusBadGateway, "Dependency Unavailable", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
