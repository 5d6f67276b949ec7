package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/erazemk/nakit/internal/metrics"
	"github.com/erazemk/nakit/internal/model"
)

// CredentialStore is the persistence the Migrator needs. FindCredential
// returns nil, nil for an unknown identifier.
type CredentialStore interface {
	FindCredential(ctx context.Context, identifier string) (*model.User, error)
	RecordLoginSuccess(ctx context.Context, userID int64) error
	RecordLoginFailure(ctx context.Context, userID int64) error
	// UpgradeHash replaces oldHash with newHash and resets the failure
	// counters in one statement, only if the stored hash still equals
	// oldHash. It reports whether the replacement happened.
	UpgradeHash(ctx context.Context, userID int64, oldHash, newHash string) (bool, error)
}

// Migrator authenticates users and moves legacy password hashes to the
// modern scheme on their first successful login.
type Migrator struct {
	store  CredentialStore
	hasher Hasher
	logger *slog.Logger
	// dummy is verified against when there is no real hash to check, so a
	// failed login costs the same whatever the reason.
	dummy ModernHash
}

// MigratorOption configures a Migrator.
type MigratorOption func(*Migrator)

// WithMigratorLogger sets the logger. The default is slog.Default().
func WithMigratorLogger(l *slog.Logger) MigratorOption {
	return func(m *Migrator) { m.logger = l }
}

// NewMigrator creates a Migrator writing new hashes with hasher.
func NewMigrator(store CredentialStore, hasher Hasher, opts ...MigratorOption) (*Migrator, error) {
	m := &Migrator{store: store, hasher: hasher, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}

	dummy, err := hasher.Hash("nakit timing equalizer")
	if err != nil {
		return nil, fmt.Errorf("creating dummy hash: %w", err)
	}
	m.dummy = ModernHash{Scheme: hasher.Scheme, Encoded: dummy}
	return m, nil
}

// Hasher returns the hasher used for new credentials.
func (m *Migrator) Hasher() Hasher {
	return m.hasher
}

// Authenticate checks plaintext against the credential of identifier.
// Every kind of mismatch (unknown user, inactive user, wrong password,
// unreadable hash) yields model.ErrAuthenticationFailed.
func (m *Migrator) Authenticate(ctx context.Context, identifier, plaintext string) (*model.Identity, error) {
	const op = "auth.Authenticate"

	user, err := m.store.FindCredential(ctx, identifier)
	if err != nil {
		return nil, model.Unavailable(op, err)
	}
	if user == nil {
		_, _ = m.hasher.Verify(m.dummy, plaintext)
		metrics.LoginAttempts.WithLabelValues(metrics.LoginFailed).Inc()
		m.logger.Info("login failed", "username", identifier, "reason", "unknown user")
		return nil, failed(op)
	}
	if !user.Active() {
		// Inactive accounts still count failures against their record.
		_, _ = m.hasher.Verify(m.dummy, plaintext)
		return m.fail(ctx, op, user)
	}

	stored, err := ParseHash(user.PasswordHash)
	if err != nil {
		_, _ = m.hasher.Verify(m.dummy, plaintext)
		m.logger.Warn("stored password hash has unknown format", "user_id", user.ID)
		return m.fail(ctx, op, user)
	}

	switch h := stored.(type) {
	case ModernHash:
		ok, err := m.hasher.Verify(h, plaintext)
		if err != nil {
			m.logger.Warn("verifying password hash", "user_id", user.ID, "error", err)
			return m.fail(ctx, op, user)
		}
		if !ok {
			return m.fail(ctx, op, user)
		}
		if m.hasher.NeedsRehash(h) {
			return m.upgrade(ctx, op, user, plaintext)
		}
		return m.succeed(ctx, op, user)

	case LegacyHash:
		// Spend the same modern verification cost before the cheap digest check.
		_, _ = m.hasher.Verify(m.dummy, plaintext)
		if !h.Matches(plaintext) {
			return m.fail(ctx, op, user)
		}
		return m.upgrade(ctx, op, user, plaintext)
	}
	return m.fail(ctx, op, user)
}

func (m *Migrator) succeed(ctx context.Context, op string, user *model.User) (*model.Identity, error) {
	if err := m.store.RecordLoginSuccess(ctx, user.ID); err != nil {
		return nil, model.Unavailable(op, err)
	}
	metrics.LoginAttempts.WithLabelValues(metrics.LoginSuccess).Inc()
	return identity(user), nil
}

// upgrade stores a modern hash of the verified plaintext in place of the
// hash that was just checked. If another login got there first the swap
// is a no-op and the login still succeeds.
func (m *Migrator) upgrade(ctx context.Context, op string, user *model.User, plaintext string) (*model.Identity, error) {
	newHash, err := m.hasher.Hash(plaintext)
	if err != nil {
		// The old hash stays; the next login tries again.
		m.logger.Error("hashing password for upgrade", "user_id", user.ID, "error", err)
		return m.succeed(ctx, op, user)
	}

	swapped, err := m.store.UpgradeHash(ctx, user.ID, user.PasswordHash, newHash)
	if err != nil {
		return nil, model.Unavailable(op, err)
	}
	if !swapped {
		m.logger.Debug("password hash already replaced", "user_id", user.ID)
		return m.succeed(ctx, op, user)
	}

	metrics.LoginAttempts.WithLabelValues(metrics.LoginUpgraded).Inc()
	m.logger.Info("upgraded password hash", "user_id", user.ID, "scheme", m.hasher.Scheme)
	return identity(user), nil
}

func (m *Migrator) fail(ctx context.Context, op string, user *model.User) (*model.Identity, error) {
	if err := m.store.RecordLoginFailure(ctx, user.ID); err != nil {
		return nil, model.Unavailable(op, err)
	}
	metrics.LoginAttempts.WithLabelValues(metrics.LoginFailed).Inc()
	m.logger.Info("login failed", "username", user.Username, "user_id", user.ID)
	return nil, failed(op)
}

func failed(op string) error {
	return &model.Error{Op: op, Kind: model.ErrAuthenticationFailed}
}

func identity(u *model.User) *model.Identity {
	return &model.Identity{UserID: u.ID, Username: u.Username, Role: u.Role}
}
