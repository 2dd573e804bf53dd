package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tourvia/backend/internal/domain"
)

// ChallengeRepository manages the one-time secrets attached to a user row:
// the hashed email login code and the hashed password-reset token. At most one
// challenge of each kind is live per user; setting a new one overwrites the old.
type ChallengeRepository interface {
	SetEmailLoginCode(ctx context.Context, userID int64, codeHash string, expiresAt time.Time) error
	ConsumeEmailLoginCode(ctx context.Context, email, codeHash string) (*domain.User, error)
	SetPasswordResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	ClearPasswordResetToken(ctx context.Context, userID int64) error
	FindByResetToken(ctx context.Context, tokenHash string) (*domain.User, error)
}

type challengeRepository struct {
	pool *pgxpool.Pool
}

func NewChallengeRepository(pool *pgxpool.Pool) ChallengeRepository {
	return &challengeRepository{pool: pool}
}

func (r *challengeRepository) SetEmailLoginCode(ctx context.Context, userID int64, codeHash string, expiresAt time.Time) error {
	const q = `
		UPDATE users
		SET email_login_code = $2, email_login_expires = $3, updated_at = now()
		WHERE id = $1 AND active`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, userID, codeHash, expiresAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ConsumeEmailLoginCode matches the hashed code against the stored challenge
// and clears it in the same statement, so a code verifies at most once.
// Returns nil when there is no live matching challenge.
func (r *challengeRepository) ConsumeEmailLoginCode(ctx context.Context, email, codeHash string) (*domain.User, error) {
	const q = `
		UPDATE users
		SET email_login_code = NULL, email_login_expires = NULL, updated_at = now()
		WHERE email = $1
		  AND email_login_code = $2
		  AND email_login_expires > now()
		  AND active
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanUser(r.pool.QueryRow(ctx, q, email, codeHash))
}

func (r *challengeRepository) SetPasswordResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	const q = `
		UPDATE users
		SET password_reset_token = $2, password_reset_expires = $3, updated_at = now()
		WHERE id = $1 AND active`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, userID, tokenHash, expiresAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ClearPasswordResetToken rolls back an issued reset challenge after a failed
// email delivery so no undelivered token stays usable.
func (r *challengeRepository) ClearPasswordResetToken(ctx context.Context, userID int64) error {
	const q = `
		UPDATE users
		SET password_reset_token = NULL, password_reset_expires = NULL, updated_at = now()
		WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, userID)
	return err
}

// FindByResetToken returns the user holding a live reset challenge with the
// given hash, or nil when the token is unknown or expired.
func (r *challengeRepository) FindByResetToken(ctx context.Context, tokenHash string) (*domain.User, error) {
	const q = `
		SELECT ` + userCols + `
		FROM users
		WHERE password_reset_token = $1
		  AND password_reset_expires > now()
		  AND active`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanUser(r.pool.QueryRow(ctx, q, tokenHash))
}
