package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type AuditAction string

const (
	AuditActionCreate        AuditAction = "create"
	AuditActionUpdate        AuditAction = "update"
	AuditActionDelete        AuditAction = "delete"
	AuditActionLogin         AuditAction = "login"
	AuditActionLogout        AuditAction = "logout"
	AuditActionPasswordReset AuditAction = "password_reset"
	AuditActionEmailVerify   AuditAction = "email_verify"
	AuditActionRoleChange    AuditAction = "role_change"
)

func ParseAuditAction(s string) (AuditAction, error) {
	switch action := AuditAction(strings.ToLower(strings.TrimSpace(s))); action {
	case AuditActionCreate, AuditActionUpdate, AuditActionDelete, AuditActionLogin, AuditActionLogout,
		AuditActionPasswordReset, AuditActionEmailVerify, AuditActionRoleChange:
		return action, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

const (
	ResourceUser    = "user"
	ResourceMessage = "message"
	ResourceSession = "session"
)

type AuditEntry struct {
	ID           string
	ActorID      *string
	Action       AuditAction
	ResourceType string
	ResourceID   *string
	OldValues    json.RawMessage
	NewValues    json.RawMessage
	IPAddress    string
	UserAgent    string
	RequestID    string
	CreatedAt    time.Time
}
