package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashSecret hashes an API key secret using SHA256. Only this hash is ever
// stored; the plaintext secret is shown once at issuance.
func HashSecret(secret string) string {
	hasher := sha256.New()
	hasher.Write([]byte(secret))
	return hex.EncodeToString(hasher.Sum(nil))
}

// SecretMatches compares a presented secret against a stored hash without
// leaking the position of the first differing byte.
func SecretMatches(secret, storedHash string) bool {
	presented := HashSecret(secret)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(storedHash)) == 1
}
