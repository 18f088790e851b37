package models

import (
	"fmt"
	"strings"
	"time"
)

type UserRole string

const (
	UserRoleUser       UserRole = "user"
	UserRoleModerator  UserRole = "moderator"
	UserRoleAdmin      UserRole = "admin"
	UserRoleSuperAdmin UserRole = "super_admin"
)

// ParseUserRole rejects anything outside the closed set of roles.
func ParseUserRole(s string) (UserRole, error) {
	switch role := UserRole(strings.ToLower(strings.TrimSpace(s))); role {
	case UserRoleUser, UserRoleModerator, UserRoleAdmin, UserRoleSuperAdmin:
		return role, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r UserRole) IsAdmin() bool {
	return r == UserRoleAdmin || r == UserRoleSuperAdmin
}

func (r UserRole) IsStaff() bool {
	return r == UserRoleModerator || r.IsAdmin()
}

type UserStatus string

const (
	UserStatusActive              UserStatus = "active"
	UserStatusInactive            UserStatus = "inactive"
	UserStatusSuspended           UserStatus = "suspended"
	UserStatusPendingVerification UserStatus = "pending_verification"
	UserStatusDeleted             UserStatus = "deleted"
)

func ParseUserStatus(s string) (UserStatus, error) {
	switch status := UserStatus(strings.ToLower(strings.TrimSpace(s))); status {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended, UserStatusPendingVerification, UserStatusDeleted:
		return status, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

type User struct {
	ID            string
	Email         string
	PasswordHash  []byte
	Username      string
	FirstName     string
	LastName      string
	Bio           *string
	AvatarURL     *string
	Role          UserRole
	Status        UserStatus
	EmailVerified bool
	LoginCount    int
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// Snapshot is the audit-safe view of a user: everything except the credential.
func (u User) Snapshot() map[string]any {
	return map[string]any{
		"id":            u.ID,
		"email":         u.Email,
		"username":      u.Username,
		"firstName":     u.FirstName,
		"lastName":      u.LastName,
		"bio":           u.Bio,
		"avatarUrl":     u.AvatarURL,
		"role":          u.Role,
		"status":        u.Status,
		"emailVerified": u.EmailVerified,
	}
}

type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash []byte
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	CreatedIP string
	UserAgent string
	CreatedAt time.Time
}

// Usable reports whether the persisted record still authorizes minting access tokens.
func (t RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
