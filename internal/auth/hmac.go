package auth

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// HMAC request headers sent by installer agents and mobile clients.
const (
	HeaderAPIToken         = "X-API-Token"
	HeaderRequestTimestamp = "X-Request-Timestamp"
	HeaderRequestSignature = "X-Request-Signature"
)

// MaxTimestampSkew is the accepted clock window for signed requests.
const MaxTimestampSkew = 300 * time.Second

// VerifyError carries the HTTP status the verification failure maps to.
type VerifyError struct {
	Status  int
	Message string
}

func (e *VerifyError) Error() string { return e.Message }

func unauthorized(msg string) *VerifyError {
	return &VerifyError{Status: http.StatusUnauthorized, Message: msg}
}

// CanonicalString builds the signed message: METHOD|PATH|TIMESTAMP|sha256hex(body).
// An empty body hashes to the digest of the empty string.
func CanonicalString(method, path, timestamp string, body []byte) string {
	return method + "|" + path + "|" + timestamp + "|" + SHA256Hex(body)
}

// SignRequest computes the request signature for the canonical string.
// Exported for clients and tests.
func SignRequest(secret, method, path, timestamp string, body []byte) string {
	return HMACSHA256Hex([]byte(secret), []byte(CanonicalString(method, path, timestamp, body)))
}

// VerifyHMACRequest validates the machine-client headers on r against the
// configured token/secret pair. body is the full request body.
//
// Validation order: config present, headers present, token match (constant
// time), timestamp window, signature match.
func VerifyHMACRequest(apiToken, apiSecret string, r *http.Request, body []byte, now time.Time) *VerifyError {
	if apiToken == "" {
		return &VerifyError{Status: http.StatusServiceUnavailable, Message: "API_TOKEN no configurado"}
	}
	if apiSecret == "" {
		return &VerifyError{Status: http.StatusServiceUnavailable, Message: "API_SECRET no configurado"}
	}

	token := r.Header.Get(HeaderAPIToken)
	timestamp := r.Header.Get(HeaderRequestTimestamp)
	signature := r.Header.Get(HeaderRequestSignature)
	if token == "" || timestamp == "" || signature == "" {
		return unauthorized("faltan cabeceras de autenticacion")
	}

	if !ConstantTimeEqual(token, apiToken) {
		return unauthorized("Token inválido")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return unauthorized("timestamp invalido")
	}
	skew := now.Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(MaxTimestampSkew.Seconds()) {
		return unauthorized(fmt.Sprintf("timestamp fuera de la ventana de %d segundos", int64(MaxTimestampSkew.Seconds())))
	}

	expected := SignRequest(apiSecret, r.Method, r.URL.Path, timestamp, body)
	if !ConstantTimeEqual(signature, expected) {
		return unauthorized("firma de la peticion invalida")
	}

	return nil
}
