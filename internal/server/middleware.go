package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/instalog/internal/auth"
	"github.com/fieldops/instalog/internal/common"
	"github.com/fieldops/instalog/internal/interfaces"
)

// maxRequestBodyBytes caps what the signature verifier will buffer. Large
// enough that an oversize photo still authenticates and earns its 413.
const maxRequestBodyBytes = 32 << 20

// responseWriter wraps http.ResponseWriter to capture status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// recoveryMiddleware catches panics and returns the legacy 500 shape.
func recoveryMiddleware(logger *common.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Str("panic", fmt.Sprintf("%v", rec)).
						Str("path", r.URL.Path).
						Msg("Panic recovered in HTTP handler")
					WriteUnexpectedError(w, fmt.Sprintf("%v", rec))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware adds CORS headers and answers preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Token, X-Request-Timestamp, X-Request-Signature, X-File-Name")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// correlationIDMiddleware extracts or generates a correlation ID.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := r.Header.Get("X-Request-ID")
		if corrID == "" {
			corrID = r.Header.Get("X-Correlation-ID")
		}
		if corrID == "" {
			corrID = uuid.New().String()[:8]
		}
		w.Header().Set("X-Correlation-ID", corrID)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(logger *common.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			dur := time.Since(start)
			corrID := w.Header().Get("X-Correlation-ID")

			event := logger.Trace()
			if rw.statusCode >= 500 {
				event = logger.Error()
			} else if rw.statusCode >= 400 {
				event = logger.Info()
			}

			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("query", r.URL.RawQuery).
				Int("status", rw.statusCode).
				Int("bytes", rw.bytesWritten).
				Dur("duration", dur).
				Str("correlation_id", corrID).
				Msg("HTTP request")
		})
	}
}

// exemptFromAuth lists the routes that run unauthenticated: service
// metadata, health, and the login/bootstrap entry points.
func exemptFromAuth(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	path := r.URL.Path
	if r.Method == http.MethodGet && (path == "/" || path == "/health") {
		return true
	}
	return path == "/web/auth/login" || path == "/web/auth/bootstrap"
}

// authMiddleware admits requests on one of two paths: a web session token
// for /web/* routes, or the machine-client HMAC signature everywhere else.
// Session-admitted twin routes (/web/installations etc.) are rewritten onto
// the machine route table after validation.
func authMiddleware(config *common.Config, storage interfaces.StorageManager, logger *common.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptFromAuth(r) {
				ctx := auth.WithRequestAuth(r.Context(), &auth.RequestAuth{Mode: auth.ModeNone})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if strings.HasPrefix(r.URL.Path, "/web/") {
				serveWebSession(config, storage, next, w, r)
				return
			}

			if !config.Auth.HmacConfigured() {
				// Dev mode: neither API_TOKEN nor API_SECRET configured.
				ctx := auth.WithRequestAuth(r.Context(), &auth.RequestAuth{Mode: auth.ModeHMAC})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
			if err != nil {
				WriteAPIError(w, http.StatusBadRequest, "no se pudo leer el cuerpo de la peticion")
				return
			}

			if verr := auth.VerifyHMACRequest(config.Auth.APIToken, config.Auth.APISecret, r, body, time.Now()); verr != nil {
				logger.Warn().
					Str("path", r.URL.Path).
					Str("reason", verr.Message).
					Msg("HMAC verification failed")
				WriteAPIError(w, verr.Status, verr.Message)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			ctx := auth.WithRequestAuth(r.Context(), &auth.RequestAuth{Mode: auth.ModeHMAC})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// serveWebSession validates the bearer token, confirms the account is still
// active with the claimed role, and forwards the request.
func serveWebSession(config *common.Config, storage interfaces.StorageManager, next http.Handler, w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		WriteAPIError(w, http.StatusUnauthorized, "se requiere un token bearer")
		return
	}
	token := strings.TrimPrefix(header, "Bearer ")

	claims, err := auth.VerifySessionToken([]byte(config.Auth.SessionSecret), token, time.Now())
	if err != nil {
		WriteAPIError(w, http.StatusUnauthorized, "sesion invalida o expirada")
		return
	}

	user, err := storage.Users().GetByUsername(r.Context(), claims.Username)
	if err != nil || !user.IsActive || user.Role != claims.Role {
		WriteAPIError(w, http.StatusUnauthorized, "sesion invalida o expirada")
		return
	}

	ctx := auth.WithRequestAuth(r.Context(), &auth.RequestAuth{Mode: auth.ModeSession, User: user})
	r = r.WithContext(ctx)

	// Twin routes share handlers with the machine path.
	if !strings.HasPrefix(r.URL.Path, "/web/auth/") {
		r.URL.Path = strings.TrimPrefix(r.URL.Path, "/web")
	}

	next.ServeHTTP(w, r)
}

// applyMiddleware wraps a handler with the middleware stack.
func applyMiddleware(handler http.Handler, logger *common.Logger, config *common.Config, storage interfaces.StorageManager) http.Handler {
	// Apply in reverse order (last applied = first executed)
	handler = loggingMiddleware(logger)(handler)
	handler = correlationIDMiddleware(handler)
	handler = authMiddleware(config, storage, logger)(handler)
	handler = corsMiddleware(handler)
	handler = recoveryMiddleware(logger)(handler)
	return handler
}
