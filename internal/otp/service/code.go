package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"

	"golang.org/x/crypto/blake2b"
)

// generateCode returns a uniformly random zero-padded numeric code.
func generateCode(length int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// codeHasher computes a keyed BLAKE2b-256 digest so stored hashes cannot be
// brute forced offline without the server secret.
type codeHasher struct {
	key []byte
}

func newCodeHasher(secret string) codeHasher {
	if secret == "" {
		return codeHasher{}
	}
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return codeHasher{key: key}
}

func (h codeHasher) Hash(code string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// key length is bounded in newCodeHasher
		sum := blake2b.Sum256([]byte(code))
		return hex.EncodeToString(sum[:])
	}
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

func (h codeHasher) Equal(code, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(code)), []byte(storedHash)) == 1
}
