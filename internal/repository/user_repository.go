package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"portfolio/internal/models"
	"portfolio/internal/query"
)

// UserFilter narrows a user listing. Zero values mean "any".
type UserFilter struct {
	Search string
	Role   models.UserRole
	Status models.UserStatus
	Sort   query.Sort
	Page   query.Page
}

var userColumns = []query.Column{
	query.ColID, query.ColEmail, query.ColPasswordHash, query.ColUsername, query.ColFirstName, query.ColLastName,
	query.ColBio, query.ColAvatarURL, query.ColRole, query.ColStatus, query.ColEmailVerified, query.ColLoginCount,
	query.ColLastLoginAt, query.ColCreatedAt, query.ColUpdatedAt, query.ColDeletedAt,
}

const userSelect = `
	SELECT id, email, password_hash, username, first_name, last_name, bio, avatar_url, role, status,
	       email_verified, login_count, last_login_at, created_at, updated_at, deleted_at
	FROM users`

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.Bio,
		&user.AvatarURL,
		&user.Role,
		&user.Status,
		&user.EmailVerified,
		&user.LoginCount,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.DeletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, user models.User) (models.User, error) {
	const q = `
		INSERT INTO users (
			id, email, password_hash, username, first_name, last_name, role, status, email_verified, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW()
		)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, q,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Username,
		user.FirstName,
		user.LastName,
		user.Role,
		user.Status,
		user.EmailVerified,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return models.User{}, mapUserConflict(err)
	}
	return user, nil
}

// GetByID returns the user in any status, including soft-deleted rows.
func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, userSelect+` WHERE id = $1`, id))
}

// FindByEmail matches case-insensitively among users that are not deleted.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, userSelect+` WHERE lower(email) = lower($1) AND status <> 'deleted'`, email))
}

// Taken reports which of email and username already belong to a live user,
// ignoring the row identified by excludeID.
func (r *UserRepository) Taken(ctx context.Context, email, username, excludeID string) (emailTaken, usernameTaken bool, err error) {
	const q = `
		SELECT
			COALESCE(bool_or(lower(email) = lower($1)), FALSE),
			COALESCE(bool_or(lower(username) = lower($2)), FALSE)
		FROM users
		WHERE status <> 'deleted' AND id <> $3 AND (lower(email) = lower($1) OR lower(username) = lower($2))
	`
	err = r.pool.QueryRow(ctx, q, email, username, excludeID).Scan(&emailTaken, &usernameTaken)
	return emailTaken, usernameTaken, err
}

func (r *UserRepository) List(ctx context.Context, f UserFilter) ([]models.User, int, error) {
	w := query.NewWhere().NotEq(query.ColStatus, models.UserStatusDeleted)
	if f.Role != "" {
		w.Eq(query.ColRole, f.Role)
	}
	if f.Status != "" {
		w.Eq(query.ColStatus, f.Status)
	}
	w.Search(f.Search, query.ColEmail, query.ColUsername, query.ColFirstName, query.ColLastName)

	countSQL, countArgs := query.CountSQL(query.TableUsers, w)
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	listSQL, listArgs := query.SelectSQL(query.TableUsers, userColumns, w, f.Sort, f.Page)
	rows, err := r.pool.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0, f.Page.Limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	return users, total, rows.Err()
}

// Update writes the filtered assignments and returns the stored row.
func (r *UserRepository) Update(ctx context.Context, id string, set query.Assignments) (models.User, error) {
	sql, args, err := query.UpdateSQL(query.TableUsers, set, query.ColID, id, userColumns)
	if err != nil {
		return models.User{}, err
	}
	user, err := scanUser(r.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return models.User{}, mapUserConflict(err)
	}
	return user, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id string, hash []byte) error {
	const q = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, q, id, hash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordLogin bumps the login counter and stamps last_login_at.
func (r *UserRepository) RecordLogin(ctx context.Context, id string) (models.User, error) {
	q := `UPDATE users SET login_count = login_count + 1, last_login_at = NOW() WHERE id = $1 RETURNING ` +
		query.ColumnList(userColumns)
	return scanUser(r.pool.QueryRow(ctx, q, id))
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, id string, avatarURL *string) error {
	const q = `UPDATE users SET avatar_url = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, q, id, avatarURL)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SoftDelete marks the row deleted, freeing its email and username for reuse.
func (r *UserRepository) SoftDelete(ctx context.Context, id string) error {
	const q = `
		UPDATE users SET status = 'deleted', deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status <> 'deleted'
	`
	cmd, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes the row; refresh tokens and messages cascade.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
