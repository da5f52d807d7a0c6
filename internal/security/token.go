package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

const opaqueSecretBytes = 32

var ErrMalformedRefreshToken = errors.New("malformed refresh token")

// NewOpaqueSecret returns a high-entropy URL-safe secret for refresh and
// password-reset tokens.
func NewOpaqueSecret() (string, error) {
	raw := make([]byte, opaqueSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashTokenSecret produces the deterministic peppered digest persisted in
// place of the plaintext secret. Deterministic so the store can be queried
// by hash; the pepper keeps a leaked table from being checked offline.
func HashTokenSecret(secret, pepper string) string {
	sum := sha256.Sum256([]byte(pepper + ":" + secret))
	return hex.EncodeToString(sum[:])
}

// EncodeRefreshToken builds the wire form of a refresh token: the token row
// id joined to the opaque secret.
func EncodeRefreshToken(id, secret string) string {
	return id + "." + secret
}

// DecodeRefreshToken splits the wire form back into id and secret.
func DecodeRefreshToken(compound string) (id, secret string, err error) {
	id, secret, ok := strings.Cut(compound, ".")
	if !ok || id == "" || secret == "" {
		return "", "", ErrMalformedRefreshToken
	}
	return id, secret, nil
}
