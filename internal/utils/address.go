package utils

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsValidAddress checks whether s is a 20-byte 0x-prefixed hex address.
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// NormalizeAddress lower-cases a wallet address into its canonical storage
// form. Normalization is idempotent; invalid input is returned unchanged.
func NormalizeAddress(s string) string {
	if !IsValidAddress(s) {
		return s
	}
	return strings.ToLower(s)
}

// ChecksumAddress returns the EIP-55 mixed-case form of an address.
func ChecksumAddress(s string) (string, error) {
	if !IsValidAddress(s) {
		return "", fmt.Errorf("invalid wallet address %q", s)
	}

	lower := strings.ToLower(strings.TrimPrefix(s, "0x"))
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(lower))
	digest := hex.EncodeToString(hasher.Sum(nil))

	out := make([]byte, len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			c = c - 'a' + 'A'
		}
		out[i] = c
	}
	return "0x" + string(out), nil
}
