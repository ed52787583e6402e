package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/certregistry/internal/domain/model"
	"github.com/ericfisherdev/certregistry/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CertificateStore = (*CertificateRepo)(nil)

const certificateColumns = `id, firstname, lastname, birthdate, gender, cert_name, cert_serial_sn, cert_random_code, created_at, updated_at`

// CertificateRepo is the PostgreSQL implementation of the CertificateStore port interface.
type CertificateRepo struct {
	db *DB
}

// NewCertificateRepo creates a new CertificateRepo backed by the given DB.
func NewCertificateRepo(db *DB) *CertificateRepo {
	return &CertificateRepo{db: db}
}

// FindByKey returns the record matching key, or (nil, nil) if none exists.
func (r *CertificateRepo) FindByKey(ctx context.Context, key model.CertificateKey) (*model.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates
		WHERE firstname = $1 AND lastname = $2 AND birthdate = $3 AND cert_name = $4 AND cert_serial_sn = $5`

	return r.findOne(ctx, "find certificate by key", query,
		key.FirstName, key.LastName, key.BirthDate, key.CertName, key.CertSerialSN,
	)
}

// Insert stores a new record and returns its assigned ID.
func (r *CertificateRepo) Insert(ctx context.Context, cert model.Certificate) (int64, error) {
	const query = `
		INSERT INTO certificates
			(firstname, lastname, birthdate, gender, cert_name, cert_serial_sn, cert_random_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	now := time.Now().UTC()
	createdAt := cert.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := cert.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	var id int64
	err := r.db.Pool.QueryRowContext(ctx, query,
		cert.FirstName, cert.LastName, cert.BirthDate, cert.Gender,
		cert.CertName, cert.CertSerialSN, cert.CertRandomCode,
		createdAt, updatedAt,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("insert certificate %s: %w", cert.CertSerialSN, driven.ErrCertificateExists)
		}
		return 0, fmt.Errorf("insert certificate %s: %w", cert.CertSerialSN, err)
	}
	return id, nil
}

// UpdateCodes overwrites gender and cert_random_code on the record with id.
func (r *CertificateRepo) UpdateCodes(ctx context.Context, id int64, gender, randomCode string) error {
	const query = `UPDATE certificates SET gender = $1, cert_random_code = $2, updated_at = now() WHERE id = $3`

	result, err := r.db.Pool.ExecContext(ctx, query, gender, randomCode, id)
	if err != nil {
		return fmt.Errorf("update certificate %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update certificate %d: %w", id, driven.ErrCertificateNotFound)
	}
	return nil
}

// DeleteByIdentity removes every record held by identity.
func (r *CertificateRepo) DeleteByIdentity(ctx context.Context, identity model.Identity) (int64, error) {
	const query = `DELETE FROM certificates WHERE firstname = $1 AND lastname = $2 AND birthdate = $3`

	result, err := r.db.Pool.ExecContext(ctx, query, identity.FirstName, identity.LastName, identity.BirthDate)
	if err != nil {
		return 0, fmt.Errorf("delete certificates: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return rows, nil
}

// FindByIdentity returns the oldest record held by identity, or (nil, nil).
func (r *CertificateRepo) FindByIdentity(ctx context.Context, identity model.Identity) (*model.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates
		WHERE firstname = $1 AND lastname = $2 AND birthdate = $3
		ORDER BY id LIMIT 1`

	return r.findOne(ctx, "find certificate by identity", query,
		identity.FirstName, identity.LastName, identity.BirthDate,
	)
}

// FindBySerialAndCode returns the record with the given serial and code, or (nil, nil).
func (r *CertificateRepo) FindBySerialAndCode(ctx context.Context, serial, randomCode string) (*model.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates
		WHERE cert_serial_sn = $1 AND cert_random_code = $2
		ORDER BY id LIMIT 1`

	return r.findOne(ctx, "find certificate by serial", query, serial, randomCode)
}

// Count returns the number of stored records.
func (r *CertificateRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.Pool.QueryRowContext(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count certificates: %w", err)
	}
	return n, nil
}

func (r *CertificateRepo) findOne(ctx context.Context, op, query string, args ...any) (*model.Certificate, error) {
	var c model.Certificate
	err := r.db.Pool.QueryRowContext(ctx, query, args...).Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.BirthDate, &c.Gender,
		&c.CertName, &c.CertSerialSN, &c.CertRandomCode,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}
