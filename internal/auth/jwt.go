package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"hashscope/internal/config"
)

const sessionLifetime = 24 * time.Hour

// GenerateJWT creates a session token for a wallet that passed signature
// verification. The dashboard surface (key management, deposits) uses these
// tokens; the data surface uses API key headers instead.
func GenerateJWT(walletAddress string, cfg *config.Config) (string, int64, error) {
	expirationTime := time.Now().Add(sessionLifetime).Unix()
	claims := jwt.MapClaims{
		"sub": walletAddress,
		"exp": expirationTime,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(cfg.JWTSecret)
	if err != nil {
		return "", 0, err
	}
	return signedToken, expirationTime, nil
}

// ValidateJWT verifies the provided JWT
func ValidateJWT(tokenString string, cfg *config.Config) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return cfg.JWTSecret, nil
	})
}

// DecodeJWT extracts the wallet address from the provided JWT
func DecodeJWT(tokenString string, cfg *config.Config) (string, error) {
	token, err := ValidateJWT(tokenString, cfg)
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		wallet, ok := claims["sub"].(string)
		if !ok {
			return "", errors.New("invalid token subject")
		}
		return wallet, nil
	}
	return "", errors.New("invalid token")
}
