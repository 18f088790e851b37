package query

import "strings"

type Order string

const (
	Asc  Order = "ASC"
	Desc Order = "DESC"
)

// ParseOrder accepts asc/desc in any case; everything else is DESC.
func ParseOrder(s string) Order {
	if strings.EqualFold(strings.TrimSpace(s), "asc") {
		return Asc
	}
	return Desc
}

type Sort struct {
	Column Column
	Order  Order
}

// SortSet is the allow-list of sort keys for one listing. Unknown keys resolve to the
// fallback column, never to an error.
type SortSet struct {
	keys     map[string]Column
	fallback Column
}

func newSortSet(fallback Column, keys map[string]Column) SortSet {
	return SortSet{keys: keys, fallback: fallback}
}

func (s SortSet) Resolve(key, order string) Sort {
	col, ok := s.keys[strings.TrimSpace(key)]
	if !ok {
		return Sort{Column: s.fallback, Order: Desc}
	}
	return Sort{Column: col, Order: ParseOrder(order)}
}

var UserSorts = newSortSet(ColCreatedAt, map[string]Column{
	"createdAt":   ColCreatedAt,
	"created_at":  ColCreatedAt,
	"updatedAt":   ColUpdatedAt,
	"updated_at":  ColUpdatedAt,
	"lastLoginAt": ColLastLoginAt,
	"last_login":  ColLastLoginAt,
	"email":       ColEmail,
	"username":    ColUsername,
	"firstName":   ColFirstName,
	"first_name":  ColFirstName,
	"lastName":    ColLastName,
	"last_name":   ColLastName,
	"role":        ColRole,
	"status":      ColStatus,
	"loginCount":  ColLoginCount,
	"login_count": ColLoginCount,
})

var MessageSorts = newSortSet(ColCreatedAt, map[string]Column{
	"createdAt":    ColCreatedAt,
	"created_at":   ColCreatedAt,
	"updatedAt":    ColUpdatedAt,
	"updated_at":   ColUpdatedAt,
	"publishedAt":  ColPublishedAt,
	"published_at": ColPublishedAt,
	"title":        ColTitle,
	"viewCount":    ColViewCount,
	"view_count":   ColViewCount,
	"likeCount":    ColLikeCount,
	"like_count":   ColLikeCount,
})

// AuditSort is fixed: audit listings are always newest first.
var AuditSort = Sort{Column: ColCreatedAt, Order: Desc}
