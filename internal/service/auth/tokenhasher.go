package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const rawTokenBytes = 32 // 256 bits of entropy

// TokenHasher mints opaque refresh tokens and computes the keyed digest
// under which they are stored. The raw token never touches the database,
// so a leaked refresh_tokens table is useless without the server secret.
type TokenHasher struct {
	secret []byte
}

func NewTokenHasher(secret string) TokenHasher {
	return TokenHasher{secret: []byte(secret)}
}

// Generate returns a URL-safe random token
func (h TokenHasher) Generate() (string, error) {
	b := make([]byte, rawTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating token. Err: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Digest computes the HMAC-SHA256 storage/lookup key for a raw token
func (h TokenHasher) Digest(token string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares digests in constant time
func (h TokenHasher) Verify(token string, digest string) bool {
	return hmac.Equal([]byte(h.Digest(token)), []byte(digest))
}
