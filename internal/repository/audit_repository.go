package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"portfolio/internal/models"
	"portfolio/internal/query"
)

type AuditFilter struct {
	ActorID      string
	Action       models.AuditAction
	ResourceType string
	ResourceID   string
	From         *time.Time
	To           *time.Time
	Page         query.Page
}

var auditColumns = []query.Column{
	query.ColID, query.ColActorID, query.ColAction, query.ColResourceType, query.ColResourceID, query.ColOldValues,
	query.ColNewValues, query.ColIPAddress, query.ColUserAgent, query.ColRequestID, query.ColCreatedAt,
}

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Create(ctx context.Context, entry models.AuditEntry) error {
	const q = `
		INSERT INTO audit_logs (
			id, actor_id, action, resource_type, resource_id, old_values, new_values,
			ip_address, user_agent, request_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW()
		)
	`

	_, err := r.pool.Exec(ctx, q,
		entry.ID,
		entry.ActorID,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		nullJSON(entry.OldValues),
		nullJSON(entry.NewValues),
		entry.IPAddress,
		entry.UserAgent,
		entry.RequestID,
	)
	return err
}

// nullJSON keeps absent snapshots as SQL NULL rather than the JSON literal null.
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (r *AuditRepository) List(ctx context.Context, f AuditFilter) ([]models.AuditEntry, int, error) {
	w := query.NewWhere()
	if f.ActorID != "" {
		w.Eq(query.ColActorID, f.ActorID)
	}
	if f.Action != "" {
		w.Eq(query.ColAction, f.Action)
	}
	if f.ResourceType != "" {
		w.Eq(query.ColResourceType, f.ResourceType)
	}
	if f.ResourceID != "" {
		w.Eq(query.ColResourceID, f.ResourceID)
	}
	if f.From != nil {
		w.Gte(query.ColCreatedAt, *f.From)
	}
	if f.To != nil {
		w.Lte(query.ColCreatedAt, *f.To)
	}

	countSQL, countArgs := query.CountSQL(query.TableAuditLogs, w)
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	listSQL, listArgs := query.SelectSQL(query.TableAuditLogs, auditColumns, w, query.AuditSort, f.Page)
	rows, err := r.pool.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	entries := make([]models.AuditEntry, 0, f.Page.Limit)
	for rows.Next() {
		entry, err := scanAudit(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

func scanAudit(row pgx.Row) (models.AuditEntry, error) {
	var (
		entry          models.AuditEntry
		oldRaw, newRaw []byte
	)
	if err := row.Scan(
		&entry.ID,
		&entry.ActorID,
		&entry.Action,
		&entry.ResourceType,
		&entry.ResourceID,
		&oldRaw,
		&newRaw,
		&entry.IPAddress,
		&entry.UserAgent,
		&entry.RequestID,
		&entry.CreatedAt,
	); err != nil {
		return models.AuditEntry{}, err
	}
	entry.OldValues = oldRaw
	entry.NewValues = newRaw
	return entry, nil
}
