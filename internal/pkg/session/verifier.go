// internal/pkg/session/verifier.go
package session

import (
	"context"
	"errors"
	"fmt"

	xerrors "opsdesk-service/internal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// Claims is the token payload issued by the auth service at login.
type Claims struct {
	jwt.RegisteredClaims
	BusinessID int64  `json:"business_id"`
	Role       string `json:"role"`
}

// Verifier validates session access tokens. The auth service that mints
// tokens and manages login/logout is an external collaborator; this side
// only checks the signature and that the session has not been revoked.
type Verifier struct {
	client *redis.Client
	secret []byte
	issuer string
}

func NewVerifier(client *redis.Client, secret, issuer string) *Verifier {
	return &Verifier{
		client: client,
		secret: []byte(secret),
		issuer: issuer,
	}
}

// Verify parses and validates a token, then confirms the session is still
// live in Redis (logout and revocation delete the key).
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: session secret not configured", xerrors.ErrUnauthorized)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrUnauthorized, err)
	}

	exists, err := v.client.Exists(ctx, sessionKey(claims.ID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check session: %w", err)
	}
	if exists == 0 {
		return nil, xerrors.ErrSessionExpired
	}

	return claims, nil
}

func sessionKey(jti string) string {
	return "session:" + jti
}

// IsAuthError reports whether err is a token/session validation failure as
// opposed to an infrastructure error.
func IsAuthError(err error) bool {
	return errors.Is(err, xerrors.ErrUnauthorized) || errors.Is(err, xerrors.ErrSessionExpired)
}
