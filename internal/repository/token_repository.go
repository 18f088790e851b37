package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"portfolio/internal/models"
)

type RefreshTokenRepository struct {
	pool *pgxpool.Pool
}

func NewRefreshTokenRepository(pool *pgxpool.Pool) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool}
}

const tokenSelect = `
	SELECT id, user_id, token_hash, expires_at, revoked, revoked_at, created_ip, user_agent, created_at
	FROM refresh_tokens`

func scanToken(row pgx.Row) (models.RefreshToken, error) {
	var token models.RefreshToken
	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.Revoked,
		&token.RevokedAt,
		&token.CreatedIP,
		&token.UserAgent,
		&token.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RefreshToken{}, ErrTokenNotFound
		}
		return models.RefreshToken{}, err
	}
	return token, nil
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token models.RefreshToken) error {
	const q = `
		INSERT INTO refresh_tokens (
			id, user_id, token_hash, expires_at, created_ip, user_agent, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW()
		)
	`

	_, err := r.pool.Exec(ctx, q,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedIP,
		token.UserAgent,
	)
	return err
}

func (r *RefreshTokenRepository) FindByHash(ctx context.Context, hash []byte) (models.RefreshToken, error) {
	return scanToken(r.pool.QueryRow(ctx, tokenSelect+` WHERE token_hash = $1`, hash))
}

// Revoke marks the token revoked and returns it. Revoking an already revoked
// token succeeds without touching revoked_at.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, hash []byte) (models.RefreshToken, error) {
	const q = `
		UPDATE refresh_tokens
		SET revoked = TRUE,
		    revoked_at = COALESCE(revoked_at, NOW())
		WHERE token_hash = $1
		RETURNING id, user_id, token_hash, expires_at, revoked, revoked_at, created_ip, user_agent, created_at
	`
	return scanToken(r.pool.QueryRow(ctx, q, hash))
}

func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	const q = `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_at = NOW()
		WHERE user_id = $1 AND NOT revoked
	`
	cmd, err := r.pool.Exec(ctx, q, userID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// PurgeStale deletes tokens that expired, or were revoked, before cutoff.
func (r *RefreshTokenRepository) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1 OR (revoked AND revoked_at < $1)
	`
	cmd, err := r.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
