package service

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	tokenAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	tokenRandomLength = 24
	suffixAlphabet    = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// newInvitationToken returns 24 url-safe random characters followed by a
// lowercase ULID stamped with now.
func newInvitationToken(now time.Time) (string, error) {
	random, err := randomString(tokenAlphabet, tokenRandomLength)
	if err != nil {
		return "", err
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return random + strings.ToLower(id.String()), nil
}

func randomString(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String(), nil
}
