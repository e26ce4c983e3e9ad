package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/handoff/internal/domain/model"
)

// ErrUnauthenticated is returned when a token is missing, malformed or rejected.
var ErrUnauthenticated = errors.New("unauthenticated")

// IdentityVerifier defines the driven port for the identity provider.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (model.Identity, error)
}
