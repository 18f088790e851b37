// Package query builds parameterized SQL from closed sets of identifiers.
//
// Table and Column values can only be created inside this package, so every
// identifier that reaches SQL text comes from the declarations below; client input is
// only ever used to look identifiers up, and all values travel as $n parameters.
package query

type Table struct{ name string }

func (t Table) String() string { return t.name }

type Column struct{ name string }

func (c Column) String() string { return c.name }

func (c Column) IsZero() bool { return c.name == "" }

var (
	TableUsers         = Table{"users"}
	TableRefreshTokens = Table{"refresh_tokens"}
	TableMessages      = Table{"messages"}
	TableAuditLogs     = Table{"audit_logs"}
)

// shared
var (
	ColID        = Column{"id"}
	ColStatus    = Column{"status"}
	ColCreatedAt = Column{"created_at"}
	ColUpdatedAt = Column{"updated_at"}
)

// users
var (
	ColEmail         = Column{"email"}
	ColPasswordHash  = Column{"password_hash"}
	ColUsername      = Column{"username"}
	ColFirstName     = Column{"first_name"}
	ColLastName      = Column{"last_name"}
	ColBio           = Column{"bio"}
	ColAvatarURL     = Column{"avatar_url"}
	ColRole          = Column{"role"}
	ColEmailVerified = Column{"email_verified"}
	ColLoginCount    = Column{"login_count"}
	ColLastLoginAt   = Column{"last_login_at"}
	ColDeletedAt     = Column{"deleted_at"}
)

// messages
var (
	ColTitle        = Column{"title"}
	ColBody         = Column{"body"}
	ColExcerpt      = Column{"excerpt"}
	ColSlug         = Column{"slug"}
	ColAuthorID     = Column{"author_id"}
	ColCategoryID   = Column{"category_id"}
	ColIsFeatured   = Column{"is_featured"}
	ColIsPinned     = Column{"is_pinned"}
	ColViewCount    = Column{"view_count"}
	ColLikeCount    = Column{"like_count"}
	ColCommentCount = Column{"comment_count"}
	ColPublishedAt  = Column{"published_at"}
)

// audit_logs
var (
	ColActorID      = Column{"actor_id"}
	ColAction       = Column{"action"}
	ColResourceType = Column{"resource_type"}
	ColResourceID   = Column{"resource_id"}
	ColOldValues    = Column{"old_values"}
	ColNewValues    = Column{"new_values"}
	ColIPAddress    = Column{"ip_address"}
	ColUserAgent    = Column{"user_agent"}
	ColRequestID    = Column{"request_id"}
)
