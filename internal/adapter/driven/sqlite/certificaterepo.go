package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/certregistry/internal/domain/model"
	"github.com/ericfisherdev/certregistry/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CertificateStore = (*CertificateRepo)(nil)

const certificateColumns = `id, firstname, lastname, birthdate, gender, cert_name, cert_serial_sn, cert_random_code, created_at, updated_at`

// CertificateRepo is the SQLite implementation of the CertificateStore port interface.
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
		WHERE firstname = ? AND lastname = ? AND birthdate = ? AND cert_name = ? AND cert_serial_sn = ?`

	cert, err := scanCertificate(r.db.Reader.QueryRowContext(ctx, query,
		key.FirstName, key.LastName, key.BirthDate, key.CertName, key.CertSerialSN,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find certificate by key: %w", err)
	}
	return cert, nil
}

// Insert stores a new record and returns its assigned ID.
func (r *CertificateRepo) Insert(ctx context.Context, cert model.Certificate) (int64, error) {
	const query = `
		INSERT INTO certificates
			(firstname, lastname, birthdate, gender, cert_name, cert_serial_sn, cert_random_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
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

	result, err := r.db.Writer.ExecContext(ctx, query,
		cert.FirstName, cert.LastName, cert.BirthDate, cert.Gender,
		cert.CertName, cert.CertSerialSN, cert.CertRandomCode,
		createdAt.Format(time.RFC3339Nano), updatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return 0, fmt.Errorf("insert certificate %s: %w", cert.CertSerialSN, driven.ErrCertificateExists)
		}
		return 0, fmt.Errorf("insert certificate %s: %w", cert.CertSerialSN, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// UpdateCodes overwrites gender and cert_random_code on the record with id.
func (r *CertificateRepo) UpdateCodes(ctx context.Context, id int64, gender, randomCode string) error {
	const query = `UPDATE certificates SET gender = ?, cert_random_code = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, gender, randomCode, time.Now().UTC().Format(time.RFC3339Nano), id)
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
	const query = `DELETE FROM certificates WHERE firstname = ? AND lastname = ? AND birthdate = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, identity.FirstName, identity.LastName, identity.BirthDate)
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
		WHERE firstname = ? AND lastname = ? AND birthdate = ?
		ORDER BY id LIMIT 1`

	cert, err := scanCertificate(r.db.Reader.QueryRowContext(ctx, query,
		identity.FirstName, identity.LastName, identity.BirthDate,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find certificate by identity: %w", err)
	}
	return cert, nil
}

// FindBySerialAndCode returns the record with the given serial and code, or (nil, nil).
func (r *CertificateRepo) FindBySerialAndCode(ctx context.Context, serial, randomCode string) (*model.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates
		WHERE cert_serial_sn = ? AND cert_random_code = ?
		ORDER BY id LIMIT 1`

	cert, err := scanCertificate(r.db.Reader.QueryRowContext(ctx, query, serial, randomCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find certificate by serial: %w", err)
	}
	return cert, nil
}

// Count returns the number of stored records.
func (r *CertificateRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count certificates: %w", err)
	}
	return n, nil
}

func scanCertificate(row *sql.Row) (*model.Certificate, error) {
	var c model.Certificate
	var createdAt, updatedAt string

	err := row.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.BirthDate, &c.Gender,
		&c.CertName, &c.CertSerialSN, &c.CertRandomCode,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	c.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &c, nil
}
