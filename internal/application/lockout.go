package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/certregistry/internal/domain/model"
	"github.com/ericfisherdev/certregistry/internal/domain/port/driven"
)

// Lockout defaults for a low-volume, human-operated client.
const (
	DefaultMaxAttempts  = 3
	DefaultLockDuration = 900 * time.Second
)

// LockoutPolicy configures the password gate.
type LockoutPolicy struct {
	MaxAttempts   int
	LockDuration  time.Duration
	DefaultSecret string
}

// LockoutGuard checks application passwords and locks an app_id for
// LockDuration after MaxAttempts consecutive failures. Credentials are
// provisioned lazily with the hash of DefaultSecret.
//
// Every state transition runs through CredentialStore.Mutate, so concurrent
// checks for one app_id are serialized by the store.
type LockoutGuard struct {
	store       driven.CredentialStore
	hasher      PasswordHasher
	policy      LockoutPolicy
	defaultHash string
	now         func() time.Time
	logger      *slog.Logger
}

// NewLockoutGuard creates a LockoutGuard. Zero policy values fall back to
// DefaultMaxAttempts and DefaultLockDuration.
func NewLockoutGuard(
	store driven.CredentialStore,
	hasher PasswordHasher,
	policy LockoutPolicy,
	logger *slog.Logger,
) (*LockoutGuard, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if policy.LockDuration <= 0 {
		policy.LockDuration = DefaultLockDuration
	}

	defaultHash, err := hasher.Hash(policy.DefaultSecret)
	if err != nil {
		return nil, fmt.Errorf("hash default secret: %w", err)
	}

	return &LockoutGuard{
		store:       store,
		hasher:      hasher,
		policy:      policy,
		defaultHash: defaultHash,
		now:         time.Now,
		logger:      logger,
	}, nil
}

// Check evaluates candidate against the stored password for appID.
//
// While locked it returns *LockedError without touching the counter. A match
// resets the counter and clears any expired lock. A mismatch increments the
// counter and returns *InvalidSecretError; the failure that reaches
// MaxAttempts starts a lockout and resets the visible counter to zero.
func (g *LockoutGuard) Check(ctx context.Context, appID, candidate string) error {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return ErrEmptyAppID
	}

	now := g.now()
	var outcome error

	err := g.store.Mutate(ctx, appID, g.defaultHash, func(cred *model.AppCredential) (bool, error) {
		if cred.IsLocked(now) {
			outcome = &LockedError{RetryAfter: cred.RetryAfter(now)}
			return false, nil
		}

		if g.hasher.Matches(candidate, cred.PasswordHash) {
			changed := cred.FailedAttempts != 0 || cred.LockedUntil != nil
			cred.ResetAttempts()
			return changed, nil
		}

		// An expired lock is cleared by the first check after it.
		cred.LockedUntil = nil
		cred.FailedAttempts++

		if cred.FailedAttempts >= g.policy.MaxAttempts {
			until := now.Add(g.policy.LockDuration)
			cred.FailedAttempts = 0
			cred.LockedUntil = &until
			outcome = &InvalidSecretError{
				Attempts:   g.policy.MaxAttempts,
				Locked:     true,
				RetryAfter: g.policy.LockDuration,
			}
			return true, nil
		}

		outcome = &InvalidSecretError{
			Attempts:  cred.FailedAttempts,
			Remaining: g.policy.MaxAttempts - cred.FailedAttempts,
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("check password for %q: %w", appID, err)
	}

	if inv, ok := outcome.(*InvalidSecretError); ok {
		if inv.Locked {
			g.logger.Warn("password gate locked", "app_id", appID, "lock_duration", g.policy.LockDuration)
		} else {
			g.logger.Info("password check failed", "app_id", appID, "attempts", inv.Attempts)
		}
	}

	return outcome
}

// Change replaces the password for appID when oldSecret matches.
//
// A wrong oldSecret returns ErrOldSecretWrong and does not count as a failed
// attempt; the change path is already gated by request signatures. Success
// resets the counter and clears the lock.
func (g *LockoutGuard) Change(ctx context.Context, appID, oldSecret, newSecret string) error {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return ErrEmptyAppID
	}
	if newSecret == "" {
		return ErrEmptySecret
	}

	now := g.now()
	var outcome error

	err := g.store.Mutate(ctx, appID, g.defaultHash, func(cred *model.AppCredential) (bool, error) {
		if cred.IsLocked(now) {
			outcome = &LockedError{RetryAfter: cred.RetryAfter(now)}
			return false, nil
		}

		if !g.hasher.Matches(oldSecret, cred.PasswordHash) {
			outcome = ErrOldSecretWrong
			return false, nil
		}

		newHash, err := g.hasher.Hash(newSecret)
		if err != nil {
			return false, err
		}
		cred.PasswordHash = newHash
		cred.ResetAttempts()
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("change password for %q: %w", appID, err)
	}

	if outcome == nil {
		g.logger.Info("password changed", "app_id", appID)
	}
	return outcome
}

// LockStatus is a credential's lockout state as of the moment it was read.
type LockStatus struct {
	AppID          string
	FailedAttempts int
	Locked         bool
	RetryAfter     time.Duration
}

// Status returns the current gate state for appID, provisioning it with the
// default password if it does not exist yet.
func (g *LockoutGuard) Status(ctx context.Context, appID string) (LockStatus, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return LockStatus{}, ErrEmptyAppID
	}

	if err := g.store.CreateIfAbsent(ctx, appID, g.defaultHash); err != nil {
		return LockStatus{}, fmt.Errorf("provision %q: %w", appID, err)
	}

	cred, err := g.store.Find(ctx, appID)
	if err != nil {
		return LockStatus{}, fmt.Errorf("find %q: %w", appID, err)
	}
	if cred == nil {
		return LockStatus{}, fmt.Errorf("find %q: credential missing after provisioning", appID)
	}

	now := g.now()
	return LockStatus{
		AppID:          cred.AppID,
		FailedAttempts: cred.FailedAttempts,
		Locked:         cred.IsLocked(now),
		RetryAfter:     cred.RetryAfter(now),
	}, nil
}
