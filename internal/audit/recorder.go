// Package audit appends the security trail. Writes are best effort: a failed write
// is logged and counted but never fails the request that caused it.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"portfolio/internal/ids"
	"portfolio/internal/metrics"
	"portfolio/internal/models"
	"portfolio/internal/query"
	"portfolio/internal/repository"
)

type Store interface {
	Create(ctx context.Context, entry models.AuditEntry) error
	List(ctx context.Context, filter repository.AuditFilter) ([]models.AuditEntry, int, error)
}

// Entry is what callers hand to Record. Old and New are snapshots marshalled to JSON;
// nil leaves the column NULL.
type Entry struct {
	ActorID      string
	Action       models.AuditAction
	ResourceType string
	ResourceID   string
	Old          any
	New          any
}

type Recorder struct {
	store Store
	log   zerolog.Logger
}

func NewRecorder(store Store, log zerolog.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

func (r *Recorder) Record(ctx context.Context, e Entry) {
	entry, err := r.build(ctx, e)
	if err == nil {
		err = r.store.Create(ctx, entry)
	}
	if err != nil {
		metrics.AuditWriteFailures.Inc()
		r.log.Error().
			Err(err).
			Str("action", string(e.Action)).
			Str("resource_type", e.ResourceType).
			Str("resource_id", e.ResourceID).
			Str("request_id", entry.RequestID).
			Msg("audit write failed")
	}
}

func (r *Recorder) build(ctx context.Context, e Entry) (models.AuditEntry, error) {
	meta := MetaFrom(ctx)
	entry := models.AuditEntry{
		ID:           ids.New(),
		ActorID:      optional(e.ActorID),
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   optional(e.ResourceID),
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
		RequestID:    meta.RequestID,
	}

	var err error
	if entry.OldValues, err = snapshot(e.Old); err != nil {
		return entry, fmt.Errorf("marshal old values: %w", err)
	}
	if entry.NewValues, err = snapshot(e.New); err != nil {
		return entry, fmt.Errorf("marshal new values: %w", err)
	}
	return entry, nil
}

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Query lists entries newest first.
func (r *Recorder) Query(ctx context.Context, filter repository.AuditFilter) ([]models.AuditEntry, query.Pagination, error) {
	entries, total, err := r.store.List(ctx, filter)
	if err != nil {
		return nil, query.Pagination{}, fmt.Errorf("list audit logs: %w", err)
	}
	return entries, filter.Page.Paginate(total), nil
}
