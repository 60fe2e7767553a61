package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"hashscope/internal/utils"
)

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateNonce returns a random single-use nonce for wallet login.
func GenerateNonce() (string, error) {
	buf := make([]byte, 32)
	max := big.NewInt(int64(len(nonceAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate nonce: %w", err)
		}
		buf[i] = nonceAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// AuthMessage builds the text a wallet signs to authenticate. The frontend
// must produce the byte-identical message, so the format is load-bearing.
func AuthMessage(walletAddress, nonce string) string {
	return fmt.Sprintf(
		"Sign this message to authenticate with HashScope API\n\nWallet: %s\nNonce: %s",
		walletAddress, nonce,
	)
}

// VerifyWalletSignature checks that signature is a personal-sign (EIP-191)
// signature of message by the given wallet address.
func VerifyWalletSignature(message, signature, walletAddress string) (bool, error) {
	if !utils.IsValidAddress(walletAddress) {
		return false, fmt.Errorf("invalid wallet address %q", walletAddress)
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return false, fmt.Errorf("malformed signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return false, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	// Wallets encode the recovery id as 27/28; go-ethereum expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[crypto.RecoveryIDOffset] -= 27
	}

	digest := accounts.TextHash([]byte(message))
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return false, fmt.Errorf("failed to recover signer: %w", err)
	}

	recovered := crypto.PubkeyToAddress(*pub).Hex()
	return strings.EqualFold(recovered, walletAddress), nil
}
