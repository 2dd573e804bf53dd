package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tourvia/backend/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, req *domain.SignupRequest, passwordHash string) (*domain.User, error)
	CreateGoogle(ctx context.Context, name, email, photo string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	FindByPhone(ctx context.Context, phone string) (*domain.User, error)
	PhoneInUse(ctx context.Context, phone string, excludeID int64) (bool, error)
	UpdateProfile(ctx context.Context, id int64, req *domain.UpdateMeRequest) (*domain.User, error)
	Update(ctx context.Context, id int64, req *domain.UpdateUserRequest) (*domain.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	SetPhone(ctx context.Context, id int64, phone string) error
	MarkPhoneVerified(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userCols = `id, name, email, photo, role, provider, COALESCE(phone_number, ''), phone_verified,
	COALESCE(password_hash, ''), password_changed_at, active, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Photo, &u.Role, &u.Provider, &u.PhoneNumber, &u.PhoneVerified,
		&u.PasswordHash, &u.PasswordChangedAt, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Create(ctx context.Context, req *domain.SignupRequest, passwordHash string) (*domain.User, error) {
	const q = `
		INSERT INTO users (name, email, provider, password_hash)
		VALUES ($1, $2, 'email', $3)
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanUser(r.pool.QueryRow(ctx, q, req.Name, req.Email, passwordHash))
}

func (r *userRepository) CreateGoogle(ctx context.Context, name, email, photo string) (*domain.User, error) {
	const q = `
		INSERT INTO users (name, email, photo, provider)
		VALUES ($1, $2, COALESCE(NULLIF($3, ''), 'default.jpg'), 'google')
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanUser(r.pool.QueryRow(ctx, q, name, email, photo))
}

// Read paths exclude soft-deleted accounts by default.

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE email = $1 AND active`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanUser(r.pool.QueryRow(ctx, q, email))
}

func (r *userRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id = $1 AND active`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanUser(r.pool.QueryRow(ctx, q, id))
}

func (r *userRepository) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE phone_number = $1 AND active`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanUser(r.pool.QueryRow(ctx, q, phone))
}

// PhoneInUse checks phone uniqueness among users that have one set. It looks
// past the active filter so a deactivated account still holds its number.
func (r *userRepository) PhoneInUse(ctx context.Context, phone string, excludeID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE phone_number = $1 AND id <> $2)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q, phone, excludeID).Scan(&exists)
	return exists, err
}

func (r *userRepository) UpdateProfile(ctx context.Context, id int64, req *domain.UpdateMeRequest) (*domain.User, error) {
	const q = `
		UPDATE users
		SET
			name = COALESCE($2, name),
			photo = COALESCE($3, photo),
			updated_at = now()
		WHERE id = $1 AND active
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanUser(r.pool.QueryRow(ctx, q, id, req.Name, req.Photo))
}

func (r *userRepository) Update(ctx context.Context, id int64, req *domain.UpdateUserRequest) (*domain.User, error) {
	const q = `
		UPDATE users
		SET
			name = COALESCE($2, name),
			photo = COALESCE($3, photo),
			role = COALESCE($4, role),
			updated_at = now()
		WHERE id = $1 AND active
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanUser(r.pool.QueryRow(ctx, q, id, req.Name, req.Photo, req.Role))
}

// UpdatePassword stores the new hash and backdates password_changed_at by one
// second so a session token minted in the same instant still compares stale.
// Any outstanding reset challenge is cleared in the same write.
func (r *userRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	const q = `
		UPDATE users
		SET
			password_hash = $2,
			password_changed_at = now() - interval '1 second',
			password_reset_token = NULL,
			password_reset_expires = NULL,
			updated_at = now()
		WHERE id = $1 AND active`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, passwordHash)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) SetPhone(ctx context.Context, id int64, phone string) error {
	const q = `
		UPDATE users
		SET phone_number = $2, phone_verified = false, updated_at = now()
		WHERE id = $1 AND active`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, phone)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) MarkPhoneVerified(ctx context.Context, id int64) error {
	const q = `UPDATE users SET phone_verified = true, updated_at = now() WHERE id = $1 AND active`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Deactivate is the ordinary account-deletion path: a soft delete.
func (r *userRepository) Deactivate(ctx context.Context, id int64) error {
	const q = `UPDATE users SET active = false, updated_at = now() WHERE id = $1 AND active`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes the row outright. Admin-only path.
func (r *userRepository) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM users WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `
		SELECT ` + userCols + `
		FROM users
		WHERE active
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(
			&u.ID, &u.Name, &u.Email, &u.Photo, &u.Role, &u.Provider, &u.PhoneNumber, &u.PhoneVerified,
			&u.PasswordHash, &u.PasswordChangedAt, &u.Active, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}
