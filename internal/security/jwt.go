package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims is the payload of a signed access token. The jti
// (RegisteredClaims.ID) is the revocation-cache key.
type AccessClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenSigner abstracts signing and verification so the algorithm and
// secret rotation can change without touching callers.
type TokenSigner interface {
	Sign(userID, username, role string, ttl time.Duration) (string, *AccessClaims, error)
	Verify(raw string) (*AccessClaims, error)
}

type JWTManager struct {
	issuer string
	secret []byte
}

var ErrInvalidAccessToken = errors.New("invalid access token")

func NewJWTManager(issuer string, secret []byte) *JWTManager {
	return &JWTManager{issuer: issuer, secret: secret}
}

func (m *JWTManager) Sign(userID, username, role string, ttl time.Duration) (string, *AccessClaims, error) {
	now := time.Now()
	claims := &AccessClaims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return raw, claims, nil
}

func (m *JWTManager) Verify(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return nil, ErrInvalidAccessToken
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}
