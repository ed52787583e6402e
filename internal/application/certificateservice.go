package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/certregistry/internal/domain/model"
	"github.com/ericfisherdev/certregistry/internal/domain/port/driven"
)

// UpsertStatus reports which branch an upsert took.
type UpsertStatus string

const (
	UpsertInserted UpsertStatus = "inserted"
	UpsertUpdated  UpsertStatus = "updated"
)

// UpsertResult is the outcome of CertificateService.Upsert.
type UpsertResult struct {
	Status UpsertStatus
	ID     int64
}

// CertificateService implements the record operations behind the signed
// endpoints and the public lookup.
type CertificateService struct {
	store  driven.CertificateStore
	logger *slog.Logger
}

// NewCertificateService creates a CertificateService backed by store.
func NewCertificateService(store driven.CertificateStore, logger *slog.Logger) *CertificateService {
	return &CertificateService{store: store, logger: logger}
}

// Upsert updates gender and cert_random_code on the record matching the
// certificate's key, or inserts a new record when none matches.
func (s *CertificateService) Upsert(ctx context.Context, cert model.Certificate) (UpsertResult, error) {
	if !completeKey(cert.Key()) {
		return UpsertResult{}, ErrIncompleteCertificate
	}

	// A concurrent insert of the same key surfaces as ErrCertificateExists;
	// the second pass then takes the update branch.
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.store.FindByKey(ctx, cert.Key())
		if err != nil {
			return UpsertResult{}, fmt.Errorf("find certificate: %w", err)
		}

		if existing != nil {
			err := s.store.UpdateCodes(ctx, existing.ID, cert.Gender, cert.CertRandomCode)
			if errors.Is(err, driven.ErrCertificateNotFound) {
				continue
			}
			if err != nil {
				return UpsertResult{}, fmt.Errorf("update certificate %d: %w", existing.ID, err)
			}
			return UpsertResult{Status: UpsertUpdated, ID: existing.ID}, nil
		}

		now := time.Now().UTC()
		cert.CreatedAt = now
		cert.UpdatedAt = now
		id, err := s.store.Insert(ctx, cert)
		if errors.Is(err, driven.ErrCertificateExists) {
			continue
		}
		if err != nil {
			return UpsertResult{}, fmt.Errorf("insert certificate: %w", err)
		}
		s.logger.Info("certificate inserted", "id", id, "cert_name", cert.CertName)
		return UpsertResult{Status: UpsertInserted, ID: id}, nil
	}

	return UpsertResult{}, fmt.Errorf("upsert certificate: concurrent modification of %s/%s", cert.CertName, cert.CertSerialSN)
}

// Delete removes every record held by identity and returns how many were removed.
func (s *CertificateService) Delete(ctx context.Context, identity model.Identity) (int64, error) {
	if !completeIdentity(identity) {
		return 0, ErrIncompleteIdentity
	}

	n, err := s.store.DeleteByIdentity(ctx, identity)
	if err != nil {
		return 0, fmt.Errorf("delete certificates: %w", err)
	}
	s.logger.Info("certificates deleted", "count", n)
	return n, nil
}

// Search returns the record held by identity, or nil when there is none.
func (s *CertificateService) Search(ctx context.Context, identity model.Identity) (*model.Certificate, error) {
	if !completeIdentity(identity) {
		return nil, ErrIncompleteIdentity
	}

	cert, err := s.store.FindByIdentity(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("search certificates: %w", err)
	}
	return cert, nil
}

// PublicLookup returns the record with the given serial number and random
// code, or nil when there is none. Both values must be supplied.
func (s *CertificateService) PublicLookup(ctx context.Context, serial, randomCode string) (*model.Certificate, error) {
	serial = strings.TrimSpace(serial)
	randomCode = strings.TrimSpace(randomCode)
	if serial == "" || randomCode == "" {
		return nil, ErrIncompleteLookup
	}

	cert, err := s.store.FindBySerialAndCode(ctx, serial, randomCode)
	if err != nil {
		return nil, fmt.Errorf("lookup certificate: %w", err)
	}
	return cert, nil
}

// Count returns the number of stored records.
func (s *CertificateService) Count(ctx context.Context) (int64, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count certificates: %w", err)
	}
	return n, nil
}

func completeIdentity(id model.Identity) bool {
	return strings.TrimSpace(id.FirstName) != "" &&
		strings.TrimSpace(id.LastName) != "" &&
		strings.TrimSpace(id.BirthDate) != ""
}

func completeKey(key model.CertificateKey) bool {
	return completeIdentity(key.Identity) &&
		strings.TrimSpace(key.CertName) != "" &&
		strings.TrimSpace(key.CertSerialSN) != ""
}
