package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters for stored password hashes.
const (
	PBKDF2Iterations = 100000
	pbkdf2SaltBytes  = 16
	pbkdf2KeyBytes   = 32
)

// MinPasswordLength is the web console password policy minimum.
const MinPasswordLength = 10

// HashPasswordPBKDF2 derives a fresh PBKDF2-SHA256 hash with a random salt.
// Stored form: pbkdf2_sha256$<iter>$<saltB64>$<dkB64>.
func HashPasswordPBKDF2(password string) (string, error) {
	salt := make([]byte, pbkdf2SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	dk := pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, pbkdf2KeyBytes, sha256.New)
	return fmt.Sprintf("pbkdf2_sha256$%d$%s$%s",
		PBKDF2Iterations,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(dk),
	), nil
}

// verifyPBKDF2 checks a password against a stored pbkdf2_sha256 hash.
func verifyPBKDF2(password, stored string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 || parts[0] != "pbkdf2_sha256" {
		return false
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha256.New)
	return ConstantTimeEqual(string(got), string(want))
}

// VerifyPassword checks a password against a stored hash of the given type.
// needsRehash is true when the password verified against a bcrypt hash and
// the row should be upgraded to PBKDF2.
func VerifyPassword(password, storedHash, hashType string) (ok bool, needsRehash bool) {
	switch hashType {
	case "bcrypt":
		err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password))
		return err == nil, err == nil
	case "pbkdf2_sha256":
		return verifyPBKDF2(password, storedHash), false
	default:
		return false, false
	}
}

// ValidatePasswordPolicy checks the web console password policy and returns
// an error naming every missing class so clients can localize.
func ValidatePasswordPolicy(password string) error {
	var missing []string
	if len(password) < MinPasswordLength {
		missing = append(missing, fmt.Sprintf("minimo %d caracteres", MinPasswordLength))
	}
	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, c := range password {
		switch {
		case unicode.IsLower(c):
			hasLower = true
		case unicode.IsUpper(c):
			hasUpper = true
		case unicode.IsDigit(c):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}
	if !hasLower {
		missing = append(missing, "una minuscula")
	}
	if !hasUpper {
		missing = append(missing, "una mayuscula")
	}
	if !hasDigit {
		missing = append(missing, "un numero")
	}
	if !hasSpecial {
		missing = append(missing, "un caracter especial")
	}
	if len(missing) > 0 {
		return fmt.Errorf("la contrasena requiere: %s", strings.Join(missing, ", "))
	}
	return nil
}
