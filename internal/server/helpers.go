package server

import (
	"encoding/json"
	"net/http"
	"strings"
)

// APIError is the error payload of the standard response envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope is the standard error format for structured failures.
type ErrorEnvelope struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteAPIError writes the standard error envelope. The code is
// UNAUTHORIZED for 401 responses and INVALID_REQUEST for everything else.
func WriteAPIError(w http.ResponseWriter, statusCode int, message string) {
	code := "INVALID_REQUEST"
	if statusCode == http.StatusUnauthorized {
		code = "UNAUTHORIZED"
	}
	WriteJSON(w, statusCode, ErrorEnvelope{Error: APIError{Code: code, Message: message}})
}

// WriteUnexpectedError writes the legacy 500 shape used for unhandled
// persistence and runtime failures.
func WriteUnexpectedError(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": message})
}

// WriteRouteNotFound writes the plain-text response for unknown paths and
// methods.
func WriteRouteNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte("Ruta no encontrada."))
}

// DecodeJSON reads and decodes JSON from the request body into v.
// Returns false and writes a 400 error if decoding fails.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		WriteAPIError(w, http.StatusBadRequest, "se requiere un cuerpo JSON")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "JSON invalido: "+err.Error())
		return false
	}
	return true
}

// ClientIP resolves the caller address: CF-Connecting-IP, then the first
// X-Forwarded-For element, then the peer address.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return strings.Trim(host, "[]")
}
