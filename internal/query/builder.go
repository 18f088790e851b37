package query

import (
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyUpdate = errors.New("no updatable fields supplied")

// Where accumulates AND-ed conditions; every value becomes a positional parameter.
type Where struct {
	conds []string
	args  []any
}

func NewWhere() *Where {
	return &Where{}
}

func (w *Where) next(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *Where) cmp(c Column, op string, v any) *Where {
	w.conds = append(w.conds, fmt.Sprintf("%s %s %s", c.name, op, w.next(v)))
	return w
}

func (w *Where) Eq(c Column, v any) *Where    { return w.cmp(c, "=", v) }
func (w *Where) NotEq(c Column, v any) *Where { return w.cmp(c, "<>", v) }
func (w *Where) Gte(c Column, v any) *Where   { return w.cmp(c, ">=", v) }
func (w *Where) Lte(c Column, v any) *Where   { return w.cmp(c, "<=", v) }

// Search OR-s a case-insensitive substring match of term across cols, sharing one
// parameter. LIKE wildcards in term match literally.
func (w *Where) Search(term string, cols ...Column) *Where {
	term = strings.TrimSpace(term)
	if term == "" || len(cols) == 0 {
		return w
	}
	param := w.next("%" + escapeLike(term) + "%")
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, fmt.Sprintf("%s ILIKE %s", c.name, param))
	}
	w.conds = append(w.conds, "("+strings.Join(parts, " OR ")+")")
	return w
}

// Tagged restricts messages to those carrying tag.
func (w *Where) Tagged(tag string) *Where {
	w.conds = append(w.conds, fmt.Sprintf(
		"EXISTS (SELECT 1 FROM message_tags mt WHERE mt.message_id = %s.%s AND mt.tag = %s)",
		TableMessages.name, ColID.name, w.next(tag)))
	return w
}

func (w *Where) SQL() string {
	if w == nil || len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *Where) Args() []any {
	if w == nil {
		return nil
	}
	return append([]any(nil), w.args...)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ColumnList renders cols as a comma separated select list.
func ColumnList(cols []Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return strings.Join(names, ", ")
}

// SelectSQL renders a paginated listing. Ties on the sort column are broken by id so
// pages do not overlap.
func SelectSQL(t Table, cols []Column, w *Where, sort Sort, page Page) (string, []any) {
	args := w.Args()
	order := sort.Order
	if order != Asc {
		order = Desc
	}
	sortCol := sort.Column
	if sortCol.IsZero() {
		sortCol = ColCreatedAt
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s ORDER BY %s %s", ColumnList(cols), t.name, w.SQL(), sortCol.name, order)
	if sortCol != ColID {
		fmt.Fprintf(&b, ", %s %s", ColID.name, order)
	}
	args = append(args, page.Limit, page.Offset())
	fmt.Fprintf(&b, " LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return b.String(), args
}

func CountSQL(t Table, w *Where) (string, []any) {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", t.name, w.SQL()), w.Args()
}

// UpdateSQL renders "UPDATE t SET ... , updated_at = NOW() WHERE key = $n RETURNING ...".
func UpdateSQL(t Table, set Assignments, key Column, keyValue any, returning []Column) (string, []any, error) {
	if len(set) == 0 {
		return "", nil, ErrEmptyUpdate
	}

	args := make([]any, 0, len(set)+1)
	parts := make([]string, 0, len(set)+1)
	for _, a := range set {
		args = append(args, a.Value)
		parts = append(parts, fmt.Sprintf("%s = $%d", a.Column.name, len(args)))
	}
	parts = append(parts, ColUpdatedAt.name+" = NOW()")
	args = append(args, keyValue)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d", t.name, strings.Join(parts, ", "), key.name, len(args))
	if len(returning) > 0 {
		sql += " RETURNING " + ColumnList(returning)
	}
	return sql, args, nil
}
