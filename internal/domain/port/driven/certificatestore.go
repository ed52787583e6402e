package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/certregistry/internal/domain/model"
)

// Sentinel errors returned by CertificateStore implementations.
var (
	ErrCertificateNotFound = errors.New("certificate not found")
	ErrCertificateExists   = errors.New("certificate already exists")
)

// CertificateStore defines the driven port for certificate record persistence.
// All lookups are exact matches.
type CertificateStore interface {
	// FindByKey returns the record matching key, or (nil, nil) if none exists.
	FindByKey(ctx context.Context, key model.CertificateKey) (*model.Certificate, error)

	// Insert stores a new record and returns its assigned ID. Returns
	// ErrCertificateExists if a record with the same key is already stored.
	Insert(ctx context.Context, cert model.Certificate) (int64, error)

	// UpdateCodes overwrites gender and cert_random_code on the record with id.
	// Returns ErrCertificateNotFound if no such record exists.
	UpdateCodes(ctx context.Context, id int64, gender, randomCode string) error

	// DeleteByIdentity removes every record held by the identity and returns
	// the number removed.
	DeleteByIdentity(ctx context.Context, identity model.Identity) (int64, error)

	// FindByIdentity returns the first record held by the identity, or
	// (nil, nil) if none exists.
	FindByIdentity(ctx context.Context, identity model.Identity) (*model.Certificate, error)

	// FindBySerialAndCode returns the record with the given serial number and
	// random code, or (nil, nil) if none exists.
	FindBySerialAndCode(ctx context.Context, serial, randomCode string) (*model.Certificate, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)
}
