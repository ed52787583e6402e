package sqlite

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
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Find returns the credential for appID, or (nil, nil) if none exists.
func (r *CredentialRepo) Find(ctx context.Context, appID string) (*model.AppCredential, error) {
	cred, err := findCredential(ctx, r.db.Reader, appID)
	if err != nil {
		return nil, fmt.Errorf("find credential %q: %w", appID, err)
	}
	return cred, nil
}

// CreateIfAbsent provisions appID with defaultHash. Existing rows are left untouched.
func (r *CredentialRepo) CreateIfAbsent(ctx context.Context, appID, defaultHash string) error {
	if err := createCredential(ctx, r.db.Writer, appID, defaultHash); err != nil {
		return fmt.Errorf("create credential %q: %w", appID, err)
	}
	return nil
}

// Update persists the hash, counter and lock of cred.
func (r *CredentialRepo) Update(ctx context.Context, cred model.AppCredential) error {
	if err := updateCredential(ctx, r.db.Writer, cred); err != nil {
		return fmt.Errorf("update credential %q: %w", cred.AppID, err)
	}
	return nil
}

// Mutate runs provision, read, fn and write inside one write transaction.
// The provisioned row is committed even when fn reports no change.
// The provisioning insert is the first statement, so the write lock is held
// before the row is read and concurrent mutations cannot interleave.
func (r *CredentialRepo) Mutate(ctx context.Context, appID, defaultHash string, fn driven.CredentialMutation) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := createCredential(ctx, tx, appID, defaultHash); err != nil {
		return fmt.Errorf("create credential %q: %w", appID, err)
	}

	cred, err := findCredential(ctx, tx, appID)
	if err != nil {
		return fmt.Errorf("find credential %q: %w", appID, err)
	}
	if cred == nil {
		return fmt.Errorf("find credential %q: row missing after insert", appID)
	}

	changed, err := fn(cred)
	if err != nil {
		return err
	}

	if changed {
		if err := updateCredential(ctx, tx, *cred); err != nil {
			return fmt.Errorf("update credential %q: %w", appID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credential %q: %w", appID, err)
	}
	return nil
}

func createCredential(ctx context.Context, q querier, appID, defaultHash string) error {
	const query = `INSERT OR IGNORE INTO app_credentials (app_id, password_hash, failed_attempts, locked_until, updated_at) VALUES (?, ?, 0, NULL, CURRENT_TIMESTAMP)`
	_, err := q.ExecContext(ctx, query, appID, defaultHash)
	return err
}

func findCredential(ctx context.Context, q querier, appID string) (*model.AppCredential, error) {
	const query = `SELECT app_id, password_hash, failed_attempts, locked_until, updated_at FROM app_credentials WHERE app_id = ?`

	var cred model.AppCredential
	var lockedUntil sql.NullString
	var updatedAt string

	err := q.QueryRowContext(ctx, query, appID).Scan(
		&cred.AppID,
		&cred.PasswordHash,
		&cred.FailedAttempts,
		&lockedUntil,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lockedUntil.Valid && lockedUntil.String != "" {
		t, err := parseTime(lockedUntil.String)
		if err != nil {
			return nil, fmt.Errorf("parse locked_until: %w", err)
		}
		cred.LockedUntil = &t
	}

	cred.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &cred, nil
}

func updateCredential(ctx context.Context, q querier, cred model.AppCredential) error {
	const query = `
		UPDATE app_credentials
		   SET password_hash = ?, failed_attempts = ?, locked_until = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE app_id = ?
	`

	var lockedUntil any
	if cred.LockedUntil != nil {
		lockedUntil = cred.LockedUntil.UTC().Format(time.RFC3339Nano)
	}

	result, err := q.ExecContext(ctx, query, cred.PasswordHash, cred.FailedAttempts, lockedUntil, cred.AppID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return errors.New("credential not found")
	}
	return nil
}
