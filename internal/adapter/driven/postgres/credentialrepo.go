package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/certregistry/internal/domain/model"
	"github.com/ericfisherdev/certregistry/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the PostgreSQL implementation of the CredentialStore port interface.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Find returns the credential for appID, or (nil, nil) if none exists.
func (r *CredentialRepo) Find(ctx context.Context, appID string) (*model.AppCredential, error) {
	cred, err := findCredential(ctx, r.db.Pool, appID, false)
	if err != nil {
		return nil, fmt.Errorf("find credential %q: %w", appID, err)
	}
	return cred, nil
}

// CreateIfAbsent provisions appID with defaultHash. Existing rows are left untouched.
func (r *CredentialRepo) CreateIfAbsent(ctx context.Context, appID, defaultHash string) error {
	if err := createCredential(ctx, r.db.Pool, appID, defaultHash); err != nil {
		return fmt.Errorf("create credential %q: %w", appID, err)
	}
	return nil
}

// Update persists the hash, counter and lock of cred.
func (r *CredentialRepo) Update(ctx context.Context, cred model.AppCredential) error {
	if err := updateCredential(ctx, r.db.Pool, cred); err != nil {
		return fmt.Errorf("update credential %q: %w", cred.AppID, err)
	}
	return nil
}

// Mutate provisions appID, locks its row with SELECT ... FOR UPDATE, runs fn
// and writes the result, all in one transaction.
func (r *CredentialRepo) Mutate(ctx context.Context, appID, defaultHash string, fn driven.CredentialMutation) error {
	tx, err := r.db.Pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := createCredential(ctx, tx, appID, defaultHash); err != nil {
		return fmt.Errorf("create credential %q: %w", appID, err)
	}

	cred, err := findCredential(ctx, tx, appID, true)
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
	const query = `
		INSERT INTO app_credentials (app_id, password_hash, failed_attempts, locked_until)
		VALUES ($1, $2, 0, NULL)
		ON CONFLICT (app_id) DO NOTHING
	`
	_, err := q.ExecContext(ctx, query, appID, defaultHash)
	return err
}

func findCredential(ctx context.Context, q querier, appID string, forUpdate bool) (*model.AppCredential, error) {
	query := `SELECT app_id, password_hash, failed_attempts, locked_until, updated_at FROM app_credentials WHERE app_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var cred model.AppCredential
	var lockedUntil sql.NullTime

	err := q.QueryRowContext(ctx, query, appID).Scan(
		&cred.AppID,
		&cred.PasswordHash,
		&cred.FailedAttempts,
		&lockedUntil,
		&cred.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lockedUntil.Valid {
		t := lockedUntil.Time.UTC()
		cred.LockedUntil = &t
	}
	cred.UpdatedAt = cred.UpdatedAt.UTC()

	return &cred, nil
}

func updateCredential(ctx context.Context, q querier, cred model.AppCredential) error {
	const query = `
		UPDATE app_credentials
		   SET password_hash = $1, failed_attempts = $2, locked_until = $3, updated_at = now()
		 WHERE app_id = $4
	`

	var lockedUntil sql.NullTime
	if cred.LockedUntil != nil {
		lockedUntil = sql.NullTime{Time: cred.LockedUntil.UTC(), Valid: true}
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
