package driven

import (
	"context"

	"github.com/ericfisherdev/certregistry/internal/domain/model"
)

// CredentialMutation inspects and optionally modifies a credential inside a
// store transaction. Returning changed=false skips the write. An error
// aborts the transaction without writing.
type CredentialMutation func(cred *model.AppCredential) (changed bool, err error)

// CredentialStore defines the driven port for application password state.
type CredentialStore interface {
	// Find returns the credential for appID, or (nil, nil) if none exists.
	Find(ctx context.Context, appID string) (*model.AppCredential, error)

	// CreateIfAbsent provisions appID with defaultHash and a clean counter.
	// It is a no-op when the credential already exists.
	CreateIfAbsent(ctx context.Context, appID, defaultHash string) error

	// Update persists the hash, counter and lock of cred.
	Update(ctx context.Context, cred model.AppCredential) error

	// Mutate provisions appID if absent, then runs fn against the current
	// credential and persists the result, all within one transaction so that
	// concurrent mutations of the same appID are serialized.
	Mutate(ctx context.Context, appID, defaultHash string, fn CredentialMutation) error
}
