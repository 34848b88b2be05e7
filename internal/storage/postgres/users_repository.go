package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/solidus-pim/server/internal/domain/users"
)

var _ users.Repository = (*UserRepository)(nil)

const userColumns = `id, username, email, role, customer_number, password_hash, is_active,
       last_login_at, created_at, updated_at`

func scanUser(row pgx.Row) (*users.User, error) {
	var user users.User
	var role string
	var customerNumber *string
	var lastLogin, createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&role,
		&customerNumber,
		&user.PasswordHash,
		&user.IsActive,
		&lastLogin,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	user.Role = users.Role(role)
	user.CustomerNumber = derefString(customerNumber)
	if lastLogin.Valid {
		value := lastLogin.Time
		user.LastLoginAt = &value
	}
	user.CreatedAt = createdAt.Time
	user.UpdatedAt = updatedAt.Time
	return &user, nil
}

func (r *UserRepository) getBy(ctx context.Context, where string, arg any) (*users.User, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+userColumns+`
  FROM users
 WHERE `+where+` = $1
`, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetByULID(ctx context.Context, ulid string) (*users.User, error) {
	return r.getBy(ctx, "id", ulid)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *UserRepository) GetByCustomerNumber(ctx context.Context, number string) (*users.User, error) {
	return r.getBy(ctx, "customer_number", number)
}

func (r *UserRepository) Create(ctx context.Context, user users.User) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO users (id, username, email, role, customer_number, password_hash, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`,
		user.ID,
		user.Username,
		user.Email,
		string(user.Role),
		nullIfEmpty(user.CustomerNumber),
		user.PasswordHash,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, user users.User) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE users SET
    email = $2, role = $3, customer_number = $4, password_hash = $5, updated_at = now()
 WHERE id = $1
`, user.ID, user.Email, string(user.Role), nullIfEmpty(user.CustomerNumber), user.PasswordHash)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (r *UserRepository) SetActive(ctx context.Context, ulid string, active bool) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1
`, ulid, active)
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, ulid string, at time.Time) error {
	_, err := r.queryer().Exec(ctx, `
UPDATE users SET last_login_at = $2 WHERE id = $1
`, ulid, at)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context, filters users.Filters) ([]users.User, int64, error) {
	queryer := r.queryer()

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	var total int64
	err := queryer.QueryRow(ctx, `
SELECT count(*)
  FROM users
 WHERE ($1 = '' OR role = $1)
   AND ($2::boolean IS NULL OR is_active = $2)
   AND ($3 = '' OR username ILIKE '%' || $3 || '%' OR email ILIKE '%' || $3 || '%')
`, string(filters.Role), filters.IsActive, filters.Query).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := queryer.Query(ctx, `
SELECT `+userColumns+`
  FROM users
 WHERE ($1 = '' OR role = $1)
   AND ($2::boolean IS NULL OR is_active = $2)
   AND ($3 = '' OR username ILIKE '%' || $3 || '%' OR email ILIKE '%' || $3 || '%')
 ORDER BY username ASC
 LIMIT $4 OFFSET $5
`, string(filters.Role), filters.IsActive, filters.Query, limit, filters.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var items []users.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, *user)
	}
	return items, total, rows.Err()
}
