// Package identity verifies bearer tokens issued by the identity provider.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

var _ driven.IdentityVerifier = (*JWTVerifier)(nil)

// Claims is the token payload. The subject is the user id.
type Claims struct {
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewJWTVerifier creates a JWTVerifier. When issuer is non-empty the iss claim must match.
func NewJWTVerifier(secret []byte, issuer string) *JWTVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTVerifier{secret: secret, issuer: issuer, parser: jwt.NewParser(opts...)}
}

// Verify parses token and returns the identity it asserts. Every failure wraps
// driven.ErrUnauthenticated.
func (v *JWTVerifier) Verify(_ context.Context, token string) (model.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Identity{}, fmt.Errorf("empty token: %w", driven.ErrUnauthenticated)
	}

	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %w", driven.ErrUnauthenticated, err)
	}
	if !parsed.Valid {
		return model.Identity{}, fmt.Errorf("invalid token: %w", driven.ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return model.Identity{}, fmt.Errorf("token has no subject: %w", driven.ErrUnauthenticated)
	}

	role := model.RoleUser
	if claims.Role == string(model.RoleAdmin) {
		role = model.RoleAdmin
	}
	return model.Identity{UserID: claims.Subject, Role: role, Email: claims.Email}, nil
}

// Sign issues a token for claims. It exists for operators and tests; the identity
// provider signs production tokens.
func (v *JWTVerifier) Sign(claims Claims) (string, error) {
	if claims.Subject == "" {
		return "", errors.New("sign token: subject is required")
	}
	if v.issuer != "" && claims.Issuer == "" {
		claims.Issuer = v.issuer
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
