package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/handoff/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// HANDOFF_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set HANDOFF_SECRET_KEY")

// CredentialStore defines the driven port for versioned credential persistence.
// Versions are append-only. The adapter layer is responsible for encryption;
// this interface operates on plaintext values at the domain boundary.
type CredentialStore interface {
	// Append stores a new version. Seq is assigned by the store and returned.
	Append(ctx context.Context, version model.CredentialVersion) (model.CredentialVersion, error)

	// Latest returns the most recent version of any kind, or nil, nil if none exists.
	Latest(ctx context.Context, listingID string) (*model.CredentialVersion, error)

	// GetByID returns nil, nil if the version does not exist.
	GetByID(ctx context.Context, id string) (*model.CredentialVersion, error)

	// History returns every version for the listing ordered by Seq.
	History(ctx context.Context, listingID string) ([]model.CredentialVersion, error)
}
