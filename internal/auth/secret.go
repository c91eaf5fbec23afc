package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	clientSecretLen      = 32
	clientSecretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// GenerateClientSecret returns a random alphanumeric application secret.
func GenerateClientSecret() (string, error) {
	max := big.NewInt(int64(len(clientSecretAlphabet)))
	out := make([]byte, clientSecretLen)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate client secret: %w", err)
		}
		out[i] = clientSecretAlphabet[n.Int64()]
	}
	return string(out), nil
}
