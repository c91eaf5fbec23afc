package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tessera.id/internal/audit"
	"tessera.id/internal/auth"
	"tessera.id/internal/directory"
	"tessera.id/internal/ids"
)

type errorBody struct {
	Error     string              `json:"error"`
	Message   string              `json:"message"`
	RequestID string              `json:"request_id,omitempty"`
	Fields    map[string][]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, errCode, msg string) {
	writeJSON(w, code, errorBody{
		Error:     errCode,
		Message:   msg,
		RequestID: audit.RequestID(r.Context()),
	})
}

// respondError maps a service error onto a status and error code. Anything
// unrecognised is logged and answered with a generic 500.
func (a *API) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *directory.ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:     "validation",
			Message:   "request validation failed",
			RequestID: audit.RequestID(r.Context()),
			Fields:    ve.Fields,
		})
	case errors.As(err, &tooLarge):
		writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "request body is too large")
	case errors.Is(err, ids.ErrInvalidVersion):
		writeError(w, r, http.StatusBadRequest, "invalid_identifier_version", "identifier must be a version 7 UUID")
	case errors.Is(err, ids.ErrInvalidFormat):
		writeError(w, r, http.StatusBadRequest, "invalid_identifier", "identifier is not a valid UUID")
	case errors.Is(err, directory.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "The resource does not exist")
	case errors.Is(err, directory.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict", "The resource already exists")
	case errors.Is(err, directory.ErrInvalidReference):
		writeError(w, r, http.StatusBadRequest, "invalid_reference", "Reference to a resource that does not exist")
	case errors.Is(err, directory.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case errors.Is(err, directory.ErrRegistrationDisabled):
		writeError(w, r, http.StatusForbidden, "registration_disabled", "registration is disabled")
	case errors.Is(err, auth.ErrHeaderMissing):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, r, http.StatusUnauthorized, "missing_authorization", "authorization header is required")
	case errors.Is(err, auth.ErrInvalidToken):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, r, http.StatusUnauthorized, "invalid_token", "invalid token")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden", "insufficient privileges")
	case errors.Is(err, auth.ErrClock):
		a.log.ErrorContext(r.Context(), "clock unavailable", "error", err)
		writeError(w, r, http.StatusServiceUnavailable, "clock_unavailable", "service temporarily unavailable")
	default:
		a.log.ErrorContext(r.Context(), "request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", audit.RequestID(r.Context()),
		)
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

var errBodyRequired = errors.New("request body is required")

// decodeJSON reads exactly one JSON value into dst. The body size is capped
// by MaxBodyBytes.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errBodyRequired
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errBodyRequired
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeBody decodes into dst and answers the request itself on failure.
// Identifier errors raised while decoding keep their own codes.
func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := decodeJSON(r, dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, ids.ErrInvalidFormat), errors.Is(err, ids.ErrInvalidVersion), errors.As(err, &tooLarge):
		a.respondError(w, r, err)
	default:
		writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
	}
	return false
}
