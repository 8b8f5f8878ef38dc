package auth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SessionScope is the only scope web session tokens carry.
const SessionScope = "web"

// SessionClaims is the payload of a web session token.
type SessionClaims struct {
	Scope    string `json:"scope"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Iat      int64  `json:"iat"`
	Exp      int64  `json:"exp"`
}

// MintSessionToken signs a session token for the user. Token format:
// base64url(payload JSON) + "." + hex(HMAC-SHA256(payload, secret)).
func MintSessionToken(secret []byte, username, role string, now time.Time, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("session secret not configured")
	}
	claims := SessionClaims{
		Scope:    SessionScope,
		Username: username,
		Role:     role,
		Iat:      now.Unix(),
		Exp:      now.Add(ttl).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session claims: %w", err)
	}
	encoded := Base64URLEncode(payload)
	sig := HMACSHA256Hex(secret, []byte(encoded))
	return encoded + "." + sig, nil
}

// VerifySessionToken checks signature, shape, scope, and expiry. The caller
// must still confirm the referenced user exists, is active, and holds the
// claimed role.
func VerifySessionToken(secret []byte, token string, now time.Time) (*SessionClaims, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("session secret not configured")
	}
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid token format")
	}
	encoded, sig := parts[0], parts[1]

	expected := HMACSHA256Hex(secret, []byte(encoded))
	if !ConstantTimeEqual(sig, expected) {
		return nil, fmt.Errorf("invalid token signature")
	}

	payload, err := Base64URLDecode(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid token encoding: %w", err)
	}
	var claims SessionClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("invalid token payload: %w", err)
	}

	if claims.Scope != SessionScope {
		return nil, fmt.Errorf("invalid token scope")
	}
	if claims.Exp <= now.Unix() {
		return nil, fmt.Errorf("token expired")
	}

	return &claims, nil
}
