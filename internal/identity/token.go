package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for malformed, expired or wrongly signed bearer tokens.
var ErrInvalidToken = errors.New("invalid bearer token")

// Claims are the JWT claims issued to marketplace accounts.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator returns an Authenticator. An empty secret disables
// authentication and every caller is treated as anonymous.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Enabled reports whether tokens are verified at all.
func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0
}

// ParseAuthorization parses an "Authorization" header value. A missing header
// yields nil claims and no error.
func (a *Authenticator) ParseAuthorization(header string) (*Claims, error) {
	header = strings.TrimSpace(header)
	if header == "" || !a.Enabled() {
		return nil, nil
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, ErrInvalidToken
	}
	return a.Parse(strings.TrimSpace(token))
}

// Parse verifies a raw token string.
func (a *Authenticator) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Email) == "" {
		return nil, fmt.Errorf("%w: missing email claim", ErrInvalidToken)
	}
	return claims, nil
}

// Issue signs a token for email with the given role, valid for ttl.
func (a *Authenticator) Issue(email, role string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("cannot issue tokens without a signing secret")
	}
	now := time.Now()
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
