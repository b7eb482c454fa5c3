package authorization

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of an operator token.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

type Token struct {
	Value     string
	Role      Role
	ExpiresAt time.Time
}

type tokenCodec struct {
	issuer string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (c tokenCodec) issue(role Role) (*Token, error) {
	if len(c.secret) == 0 {
		return nil, ErrNotConfigured
	}
	now := c.now().UTC()
	expiresAt := now.Add(c.ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   role.Subject(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, err
	}
	return &Token{Value: signed, Role: role, ExpiresAt: expiresAt}, nil
}

func (c tokenCodec) parse(raw string) (*Claims, error) {
	if len(c.secret) == 0 {
		return nil, ErrNotConfigured
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !claims.Role.Valid() || claims.Subject != claims.Role.Subject() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
