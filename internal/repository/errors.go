package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrTokenNotFound   = errors.New("refresh token not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrSlugTaken       = errors.New("slug already taken")
)

const (
	constraintUserEmail    = "users_email_active_key"
	constraintUserUsername = "users_username_active_key"
	constraintMessageSlug  = "messages_slug_key"
)

// uniqueViolation returns the violated constraint name for a 23505 error.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func mapUserConflict(err error) error {
	switch constraint, ok := uniqueViolation(err); {
	case !ok:
		return err
	case constraint == constraintUserEmail:
		return ErrEmailTaken
	case constraint == constraintUserUsername:
		return ErrUsernameTaken
	default:
		return err
	}
}
