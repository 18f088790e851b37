package query

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"portfolio/internal/apperr"
	"portfolio/internal/models"
)

// errDrop tells Filter to ignore a value the caller is not entitled to set.
var errDrop = errors.New("drop")

// Converter validates and normalizes one raw JSON value for the given caller role.
type Converter func(raw any, role models.UserRole) (any, error)

// Gate decides whether a caller role may write a field at all. A nil gate admits
// every caller who may edit the row.
type Gate func(role models.UserRole) bool

type Field struct {
	Key     string
	Aliases []string
	Column  Column
	Convert Converter
	Gate    Gate
}

type Assignment struct {
	Column Column
	Value  any
}

type Assignments []Assignment

func (a Assignments) Lookup(c Column) (any, bool) {
	for _, as := range a {
		if as.Column == c {
			return as.Value, true
		}
	}
	return nil, false
}

func (a Assignments) Has(c Column) bool {
	_, ok := a.Lookup(c)
	return ok
}

// Set replaces the value for c or appends it.
func (a Assignments) Set(c Column, v any) Assignments {
	for i := range a {
		if a[i].Column == c {
			a[i].Value = v
			return a
		}
	}
	return append(a, Assignment{Column: c, Value: v})
}

// Without returns the assignments minus any for c.
func (a Assignments) Without(c Column) Assignments {
	out := a[:0:0]
	for _, as := range a {
		if as.Column != c {
			out = append(out, as)
		}
	}
	return out
}

// FieldSet is the allow-list of writable fields for one entity.
type FieldSet struct {
	fields []Field
}

func newFieldSet(fields ...Field) FieldSet {
	return FieldSet{fields: fields}
}

// Filter keeps only allow-listed keys present in payload, silently drops gated keys
// the role may not write, and reports conversion failures as a validation error.
// Assignments come back in declaration order.
func (s FieldSet) Filter(payload map[string]any, role models.UserRole) (Assignments, error) {
	var (
		out  Assignments
		errs []apperr.FieldError
	)
	for _, f := range s.fields {
		raw, ok := lookup(payload, f)
		if !ok {
			continue
		}
		if f.Gate != nil && !f.Gate(role) {
			continue
		}
		value, err := f.Convert(raw, role)
		if errors.Is(err, errDrop) {
			continue
		}
		if err != nil {
			errs = append(errs, apperr.FieldError{Field: f.Key, Message: err.Error()})
			continue
		}
		out = append(out, Assignment{Column: f.Column, Value: value})
	}
	if len(errs) > 0 {
		return nil, apperr.Validation("invalid fields", errs...)
	}
	return out, nil
}

func lookup(payload map[string]any, f Field) (any, bool) {
	if v, ok := payload[f.Key]; ok {
		return v, true
	}
	for _, alias := range f.Aliases {
		if v, ok := payload[alias]; ok {
			return v, true
		}
	}
	return nil, false
}

func AdminGate(role models.UserRole) bool { return role.IsAdmin() }

func StaffGate(role models.UserRole) bool { return role.IsStaff() }

func Text(minLen, maxLen int) Converter {
	return func(raw any, _ models.UserRole) (any, error) {
		s, ok := raw.(string)
		if !ok {
			return nil, errors.New("must be a string")
		}
		s = strings.TrimSpace(s)
		n := utf8.RuneCountInString(s)
		if n < minLen {
			if minLen == 1 {
				return nil, errors.New("must not be empty")
			}
			return nil, fmt.Errorf("must be at least %d characters", minLen)
		}
		if n > maxLen {
			return nil, fmt.Errorf("must be at most %d characters", maxLen)
		}
		return s, nil
	}
}

// NullableText maps null and blank strings to NULL.
func NullableText(maxLen int) Converter {
	text := Text(0, maxLen)
	return func(raw any, role models.UserRole) (any, error) {
		if raw == nil {
			return (*string)(nil), nil
		}
		v, err := text(raw, role)
		if err != nil {
			return nil, err
		}
		s := v.(string)
		if s == "" {
			return (*string)(nil), nil
		}
		return &s, nil
	}
}

func Bool(raw any, _ models.UserRole) (any, error) {
	b, ok := raw.(bool)
	if !ok {
		return nil, errors.New("must be a boolean")
	}
	return b, nil
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

func Username(raw any, _ models.UserRole) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, errors.New("must be a string")
	}
	s = strings.TrimSpace(s)
	if !usernamePattern.MatchString(s) {
		return nil, errors.New("must be 3-30 letters, digits or underscores")
	}
	return s, nil
}

func HTTPURL(raw any, role models.UserRole) (any, error) {
	v, err := NullableText(500)(raw, role)
	if err != nil {
		return nil, err
	}
	ptr := v.(*string)
	if ptr == nil {
		return ptr, nil
	}
	u, err := url.Parse(*ptr)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.New("must be an http(s) url")
	}
	return ptr, nil
}

func enum[T any](parse func(string) (T, error)) Converter {
	return func(raw any, _ models.UserRole) (any, error) {
		s, ok := raw.(string)
		if !ok {
			return nil, errors.New("must be a string")
		}
		return parse(s)
	}
}

// userStatus rejects "deleted" so removal always goes through DELETE and stamps
// deleted_at.
func userStatus(raw any, _ models.UserRole) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, errors.New("must be a string")
	}
	status, err := models.ParseUserStatus(s)
	if err != nil {
		return nil, err
	}
	if status == models.UserStatusDeleted {
		return nil, errors.New("use DELETE to remove a user")
	}
	return status, nil
}

// messageStatus lets authors move between draft, published and archived. Flagging is
// reserved to staff and silently ignored for others; deletion goes through DELETE.
func messageStatus(raw any, role models.UserRole) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, errors.New("must be a string")
	}
	status, err := models.ParseMessageStatus(s)
	if err != nil {
		return nil, err
	}
	switch status {
	case models.MessageStatusDeleted:
		return nil, errors.New("use DELETE to remove a message")
	case models.MessageStatusFlagged:
		if !role.IsStaff() {
			return nil, errDrop
		}
	}
	return status, nil
}

var UserFields = newFieldSet(
	Field{Key: "firstName", Aliases: []string{"first_name"}, Column: ColFirstName, Convert: Text(1, 50)},
	Field{Key: "lastName", Aliases: []string{"last_name"}, Column: ColLastName, Convert: Text(1, 50)},
	Field{Key: "username", Column: ColUsername, Convert: Username},
	Field{Key: "bio", Column: ColBio, Convert: NullableText(500)},
	Field{Key: "avatarUrl", Aliases: []string{"avatar_url"}, Column: ColAvatarURL, Convert: HTTPURL},
	Field{Key: "role", Column: ColRole, Convert: enum(models.ParseUserRole), Gate: AdminGate},
	Field{Key: "status", Column: ColStatus, Convert: userStatus, Gate: AdminGate},
	Field{Key: "emailVerified", Aliases: []string{"email_verified"}, Column: ColEmailVerified, Convert: Bool, Gate: AdminGate},
)

var MessageFields = newFieldSet(
	Field{Key: "title", Column: ColTitle, Convert: Text(1, 200)},
	Field{Key: "body", Aliases: []string{"content"}, Column: ColBody, Convert: Text(1, 50000)},
	Field{Key: "excerpt", Column: ColExcerpt, Convert: NullableText(500)},
	Field{Key: "categoryId", Aliases: []string{"category_id"}, Column: ColCategoryID, Convert: NullableText(64)},
	Field{Key: "status", Column: ColStatus, Convert: messageStatus},
	Field{Key: "isFeatured", Aliases: []string{"is_featured"}, Column: ColIsFeatured, Convert: Bool, Gate: StaffGate},
	Field{Key: "isPinned", Aliases: []string{"is_pinned"}, Column: ColIsPinned, Convert: Bool, Gate: StaffGate},
)
