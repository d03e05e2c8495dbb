package httpx

import (
	"errors"
	"net/http"

	"github.com/Gazel/SecureKasir/internal/shared"
)

// ErrMalformedBody is returned when a request body is not valid JSON.
var ErrMalformedBody = errors.New("malformed request body")

// RespondError maps shared domain errors to JSON error responses. Anything
// unrecognised becomes a 500 without leaking the cause.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMalformedBody), errors.Is(err, shared.ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrConflict):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials), errors.Is(err, shared.ErrUnauthenticated):
		Error(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Error(w, http.StatusForbidden, err.Error())
	default:
		Error(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
