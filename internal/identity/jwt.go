package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/psds-microservice/onair-service/internal/errs"
)

// JWTProvider verifies HS256 bearer tokens whose subject is the user id.
// WebSocket clients that cannot set headers pass the token as the
// access_token query parameter.
type JWTProvider struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTProvider creates a provider for tokens signed with secret.
func NewJWTProvider(secret, issuer string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Authenticate implements Provider.
func (p *JWTProvider) Authenticate(r *http.Request) (string, error) {
	raw := bearerToken(r)
	if raw == "" {
		return "", errs.ErrUnauthenticated
	}
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	tok, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	})
	if err != nil || !tok.Valid {
		return "", fmt.Errorf("%w: %v", errs.ErrUnauthenticated, err)
	}
	if p.issuer != "" && !claims.VerifyIssuer(p.issuer, true) {
		return "", fmt.Errorf("%w: unexpected issuer", errs.ErrUnauthenticated)
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", fmt.Errorf("%w: subject is not a user id", errs.ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// Issue signs a token for userID valid for ttl. Used by the token CLI
// command and tests; production tokens come from the auth provider.
func (p *JWTProvider) Issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := p.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    p.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("access_token")
}
