package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// KeyPair is a freshly issued credential. Secret is only available here;
// afterwards the key is identified by KeyID and verified via SecretHash.
type KeyPair struct {
	KeyID      string
	Secret     string
	SecretHash string
}

// NewKeyPair generates a dual-secret API key credential: a public "hsk_"
// identifier and a private "sk_" secret.
func NewKeyPair() (*KeyPair, error) {
	keyID, err := randomHex(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key id: %w", err)
	}
	secret, err := randomHex(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	pair := &KeyPair{
		KeyID:  "hsk_" + keyID,
		Secret: "sk_" + secret,
	}
	pair.SecretHash = HashSecret(pair.Secret)
	return pair, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
