// Package identity resolves the caller of a request to a user id and
// exposes the profile attributes used for room gating. Credentials are
// managed by an external auth provider; this package only verifies the
// bearer tokens it signs.
package identity

import (
	"context"
	"net/http"

	"github.com/psds-microservice/onair-service/internal/model"
)

// Provider returns the authenticated user id for a request, or
// errs.ErrUnauthenticated.
type Provider interface {
	Authenticate(r *http.Request) (string, error)
}

// Profiles looks up and updates the profile attributes of a user.
type Profiles interface {
	Profile(ctx context.Context, userID string) (model.Profile, error)
	Verify(ctx context.Context, userID string, graduationYear int, school string) (model.Profile, error)
}
