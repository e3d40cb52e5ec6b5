package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/geoscout/geoscout/internal/auth"
	"github.com/geoscout/geoscout/internal/interfaces"
	"github.com/geoscout/geoscout/internal/services/finds"
)

// ErrorResponse is the standard error format for API responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message})
}

// WriteProtocolError maps the protocol error taxonomy to HTTP statuses.
// Unrecognized errors become a generic 500 so store internals never leak.
func WriteProtocolError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidUUID), errors.Is(err, auth.ErrInvalidRequest):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidUserID):
		WriteError(w, http.StatusUnauthorized, auth.ErrInvalidUserID.Error())
	case errors.Is(err, auth.ErrTooManyAttempts):
		WriteError(w, http.StatusTooManyRequests, auth.ErrTooManyAttempts.Error())
	case errors.Is(err, finds.ErrInvalidCode):
		WriteError(w, http.StatusForbidden, finds.ErrInvalidCode.Error())
	case errors.Is(err, finds.ErrAlreadyFound):
		WriteError(w, http.StatusConflict, finds.ErrAlreadyFound.Error())
	case errors.Is(err, interfaces.ErrNotFound):
		WriteError(w, http.StatusNotFound, "Not found")
	default:
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// RequireMethod validates the HTTP method and returns true if it matches.
// If it doesn't match, it writes a 405 response and returns false.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// DecodeJSON reads and decodes JSON from the request body into v.
// Returns false and writes a 400 error if decoding fails.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		WriteError(w, http.StatusBadRequest, "Request body is required")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

// BearerToken extracts the Authorization bearer token, or "" when absent.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// ClientIP resolves the caller's IP, preferring the first X-Forwarded-For
// hop set by the fronting proxy.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// PathParam extracts a path parameter from the URL path.
// For a pattern like /api/get-cache/{id}, calling PathParam(r, "/api/get-cache/", "")
// extracts the {id} part.
func PathParam(r *http.Request, prefix, suffix string) string {
	path := r.URL.Path
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := path[len(prefix):]
	if suffix != "" {
		if idx := strings.Index(rest, suffix); idx >= 0 {
			rest = rest[:idx]
		}
	}
	return strings.Trim(rest, "/")
}
