package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"portfolio/internal/apperr"
	"portfolio/internal/audit"
	"portfolio/internal/models"
	"portfolio/internal/query"
	"portfolio/internal/repository"
	"portfolio/internal/security"
)

type UserService struct {
	users  UserStore
	tokens TokenStore
	audit  AuditRecorder
	log    zerolog.Logger

	hashPassword func(string) ([]byte, error)
}

func NewUserService(users UserStore, tokens TokenStore, recorder AuditRecorder, log zerolog.Logger) *UserService {
	return &UserService{
		users:        users,
		tokens:       tokens,
		audit:        recorder,
		log:          log,
		hashPassword: security.HashPassword,
	}
}

// load returns the user, hiding soft-deleted rows from everyone but admins.
func (s *UserService) load(ctx context.Context, actor models.User, id string) (models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	if user.Status == models.UserStatusDeleted && !actor.Role.IsAdmin() {
		return models.User{}, apperr.NotFound("user not found")
	}
	return user, nil
}

// protectsAdmin reports whether actor is barred from administering target: only a
// super admin may act on another admin.
func protectsAdmin(actor, target models.User) bool {
	return target.ID != actor.ID && target.Role.IsAdmin() && actor.Role != models.UserRoleSuperAdmin
}

func (s *UserService) List(ctx context.Context, actor models.User, filter repository.UserFilter) ([]models.User, query.Pagination, error) {
	if !actor.Role.IsStaff() {
		return nil, query.Pagination{}, apperr.Forbidden("insufficient permissions")
	}
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, query.Pagination{}, fmt.Errorf("list users: %w", err)
	}
	return users, filter.Page.Paginate(total), nil
}

func (s *UserService) Get(ctx context.Context, actor models.User, id string) (models.User, error) {
	if actor.ID != id && !actor.Role.IsStaff() {
		return models.User{}, apperr.Forbidden("you can only view your own profile")
	}
	return s.load(ctx, actor, id)
}

func (s *UserService) Update(ctx context.Context, actor models.User, id string, payload map[string]any) (models.User, error) {
	self := actor.ID == id
	if !self && !actor.Role.IsAdmin() {
		return models.User{}, apperr.Forbidden("you can only update your own profile")
	}

	target, err := s.load(ctx, actor, id)
	if err != nil {
		return models.User{}, err
	}
	if protectsAdmin(actor, target) {
		return models.User{}, apperr.Forbidden("only a super admin can modify an administrator")
	}

	set, err := query.UserFields.Filter(payload, actor.Role)
	if err != nil {
		return models.User{}, err
	}
	if len(set) == 0 {
		return models.User{}, apperr.Validation(query.ErrEmptyUpdate.Error())
	}

	if v, ok := set.Lookup(query.ColRole); ok {
		role := v.(models.UserRole)
		if self && role != target.Role {
			return models.User{}, apperr.Forbidden("you cannot change your own role")
		}
		if role == models.UserRoleSuperAdmin && actor.Role != models.UserRoleSuperAdmin {
			return models.User{}, apperr.Forbidden("only a super admin can grant super admin")
		}
	}
	if v, ok := set.Lookup(query.ColStatus); ok && self && v.(models.UserStatus) != target.Status {
		return models.User{}, apperr.Forbidden("you cannot change your own status")
	}
	if v, ok := set.Lookup(query.ColUsername); ok && !strings.EqualFold(v.(string), target.Username) {
		_, taken, err := s.users.Taken(ctx, "", v.(string), id)
		if err != nil {
			return models.User{}, fmt.Errorf("check username: %w", err)
		}
		if taken {
			return models.User{}, apperr.Duplicate("username already taken")
		}
	}

	updated, err := s.users.Update(ctx, id, set)
	switch {
	case errors.Is(err, repository.ErrUsernameTaken):
		return models.User{}, apperr.Duplicate("username already taken")
	case errors.Is(err, repository.ErrEmailTaken):
		return models.User{}, apperr.Duplicate("email already registered")
	case errors.Is(err, repository.ErrUserNotFound):
		return models.User{}, apperr.NotFound("user not found")
	case err != nil:
		return models.User{}, fmt.Errorf("update user: %w", err)
	}

	if updated.Status != target.Status && updated.Status != models.UserStatusActive {
		s.revokeAll(ctx, updated.ID)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.ID,
		Action:       updateAction(target, updated),
		ResourceType: models.ResourceUser,
		ResourceID:   updated.ID,
		Old:          target.Snapshot(),
		New:          updated.Snapshot(),
	})
	return updated, nil
}

// updateAction picks the most specific audit action for a user update.
func updateAction(before, after models.User) models.AuditAction {
	switch {
	case before.Role != after.Role:
		return models.AuditActionRoleChange
	case !before.EmailVerified && after.EmailVerified:
		return models.AuditActionEmailVerify
	default:
		return models.AuditActionUpdate
	}
}

func (s *UserService) revokeAll(ctx context.Context, userID string) {
	if _, err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("revoke refresh tokens failed")
	}
}

// Delete soft deletes by default. Callers may not delete themselves, and only a
// super admin may delete another admin.
func (s *UserService) Delete(ctx context.Context, actor models.User, id string, permanent bool) error {
	if actor.ID == id {
		return apperr.Validation("you cannot delete your own account")
	}
	if !actor.Role.IsAdmin() {
		return apperr.Forbidden("insufficient permissions")
	}

	target, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if protectsAdmin(actor, target) {
		return apperr.Forbidden("only a super admin can delete an administrator")
	}

	if permanent {
		err = s.users.Delete(ctx, id)
	} else {
		err = s.users.SoftDelete(ctx, id)
	}
	if errors.Is(err, repository.ErrUserNotFound) {
		return apperr.NotFound("user not found")
	}
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.revokeAll(ctx, id)

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.ID,
		Action:       models.AuditActionDelete,
		ResourceType: models.ResourceUser,
		ResourceID:   id,
		Old:          target.Snapshot(),
		New:          map[string]any{"permanent": permanent},
	})
	s.log.Info().Str("user_id", id).Str("actor_id", actor.ID).Bool("permanent", permanent).Msg("user deleted")
	return nil
}

type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
}

// ChangePassword requires the current password from the account owner. Admins may
// reset someone else's password without it. All refresh tokens are revoked.
func (s *UserService) ChangePassword(ctx context.Context, actor models.User, id string, input ChangePasswordInput) error {
	self := actor.ID == id
	if !self && !actor.Role.IsAdmin() {
		return apperr.Forbidden("you can only change your own password")
	}

	target, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if protectsAdmin(actor, target) {
		return apperr.Forbidden("only a super admin can reset an administrator's password")
	}

	if self {
		ok, err := security.VerifyPassword(input.CurrentPassword, target.PasswordHash)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", id).Msg("stored password hash unreadable")
		}
		if !ok {
			return apperr.Unauthenticated("invalid_credentials", "current password is incorrect")
		}
	}
	if err := checkPassword("newPassword", input.NewPassword); err != nil {
		return err
	}

	hash, err := s.hashPassword(input.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperr.NotFound("user not found")
		}
		return fmt.Errorf("update password: %w", err)
	}
	s.revokeAll(ctx, id)

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.ID,
		Action:       models.AuditActionPasswordReset,
		ResourceType: models.ResourceUser,
		ResourceID:   id,
		New:          map[string]any{"byAdmin": !self},
	})
	return nil
}
