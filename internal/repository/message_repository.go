package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"portfolio/internal/models"
	"portfolio/internal/query"
)

// MessageFilter narrows a message listing. An empty Status excludes deleted rows.
type MessageFilter struct {
	Search     string
	Status     models.MessageStatus
	AuthorID   string
	CategoryID string
	Tag        string
	Featured   *bool
	Pinned     *bool
	Sort       query.Sort
	Page       query.Page
}

var messageColumns = []query.Column{
	query.ColID, query.ColTitle, query.ColBody, query.ColExcerpt, query.ColSlug, query.ColStatus, query.ColAuthorID,
	query.ColCategoryID, query.ColIsFeatured, query.ColIsPinned, query.ColViewCount, query.ColLikeCount,
	query.ColCommentCount, query.ColPublishedAt, query.ColCreatedAt, query.ColUpdatedAt,
}

func scanMessage(row pgx.Row) (models.Message, error) {
	var msg models.Message
	if err := row.Scan(
		&msg.ID,
		&msg.Title,
		&msg.Body,
		&msg.Excerpt,
		&msg.Slug,
		&msg.Status,
		&msg.AuthorID,
		&msg.CategoryID,
		&msg.IsFeatured,
		&msg.IsPinned,
		&msg.ViewCount,
		&msg.LikeCount,
		&msg.CommentCount,
		&msg.PublishedAt,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Message{}, ErrMessageNotFound
		}
		return models.Message{}, err
	}
	msg.Tags = []string{}
	return msg, nil
}

func mapSlugConflict(err error) error {
	if constraint, ok := uniqueViolation(err); ok && constraint == constraintMessageSlug {
		return ErrSlugTaken
	}
	return err
}

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Create inserts the message and its tags in one transaction. A slug collision
// surfaces as ErrSlugTaken.
func (r *MessageRepository) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	const q = `
		INSERT INTO messages (
			id, title, body, excerpt, slug, status, author_id, category_id, is_featured, is_pinned,
			published_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW()
		)
		RETURNING created_at, updated_at
	`

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, q,
			msg.ID,
			msg.Title,
			msg.Body,
			msg.Excerpt,
			msg.Slug,
			msg.Status,
			msg.AuthorID,
			msg.CategoryID,
			msg.IsFeatured,
			msg.IsPinned,
			msg.PublishedAt,
		).Scan(&msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return err
		}
		return replaceTags(ctx, tx, msg.ID, msg.Tags)
	})
	if err != nil {
		return models.Message{}, mapSlugConflict(err)
	}
	if msg.Tags == nil {
		msg.Tags = []string{}
	}
	return msg, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (models.Message, error) {
	return r.getOne(ctx, query.ColID, id)
}

func (r *MessageRepository) GetBySlug(ctx context.Context, slug string) (models.Message, error) {
	return r.getOne(ctx, query.ColSlug, slug)
}

func (r *MessageRepository) getOne(ctx context.Context, key query.Column, value string) (models.Message, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", query.ColumnList(messageColumns), query.TableMessages, key)
	msg, err := scanMessage(r.pool.QueryRow(ctx, q, value))
	if err != nil {
		return models.Message{}, err
	}
	tags, err := r.tagsFor(ctx, []string{msg.ID})
	if err != nil {
		return models.Message{}, err
	}
	if t, ok := tags[msg.ID]; ok {
		msg.Tags = t
	}
	return msg, nil
}

// SlugExists ignores the row identified by excludeID so an update can keep its own slug.
func (r *MessageRepository) SlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM messages WHERE slug = $1 AND id <> $2)`
	var exists bool
	err := r.pool.QueryRow(ctx, q, slug, excludeID).Scan(&exists)
	return exists, err
}

func (r *MessageRepository) List(ctx context.Context, f MessageFilter) ([]models.Message, int, error) {
	w := query.NewWhere()
	if f.Status != "" {
		w.Eq(query.ColStatus, f.Status)
	} else {
		w.NotEq(query.ColStatus, models.MessageStatusDeleted)
	}
	if f.AuthorID != "" {
		w.Eq(query.ColAuthorID, f.AuthorID)
	}
	if f.CategoryID != "" {
		w.Eq(query.ColCategoryID, f.CategoryID)
	}
	if f.Featured != nil {
		w.Eq(query.ColIsFeatured, *f.Featured)
	}
	if f.Pinned != nil {
		w.Eq(query.ColIsPinned, *f.Pinned)
	}
	if f.Tag != "" {
		w.Tagged(f.Tag)
	}
	w.Search(f.Search, query.ColTitle, query.ColBody, query.ColExcerpt)

	countSQL, countArgs := query.CountSQL(query.TableMessages, w)
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	listSQL, listArgs := query.SelectSQL(query.TableMessages, messageColumns, w, f.Sort, f.Page)
	rows, err := r.pool.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0, f.Page.Limit)
	ids := make([]string, 0, f.Page.Limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, msg)
		ids = append(ids, msg.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	tags, err := r.tagsFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range messages {
		if t, ok := tags[messages[i].ID]; ok {
			messages[i].Tags = t
		}
	}
	return messages, total, nil
}

func (r *MessageRepository) tagsFor(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	const q = `SELECT message_id, tag FROM message_tags WHERE message_id = ANY($1) ORDER BY message_id, tag`
	rows, err := r.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, err
		}
		out[id] = append(out[id], tag)
	}
	return out, rows.Err()
}

// Update applies the assignments and, when tags is non-nil, replaces the tag set.
// Either part may be empty but not both.
func (r *MessageRepository) Update(ctx context.Context, id string, set query.Assignments, tags []string) (models.Message, error) {
	if len(set) == 0 && tags == nil {
		return models.Message{}, query.ErrEmptyUpdate
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := updateMessageRow(ctx, tx, id, set); err != nil {
			return err
		}
		if tags == nil {
			return nil
		}
		return replaceTags(ctx, tx, id, tags)
	})
	if err != nil {
		return models.Message{}, mapSlugConflict(err)
	}
	return r.GetByID(ctx, id)
}

func updateMessageRow(ctx context.Context, tx pgx.Tx, id string, set query.Assignments) error {
	if len(set) == 0 {
		cmd, err := tx.Exec(ctx, `UPDATE messages SET updated_at = NOW() WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrMessageNotFound
		}
		return nil
	}

	sql, args, err := query.UpdateSQL(query.TableMessages, set, query.ColID, id, []query.Column{query.ColID})
	if err != nil {
		return err
	}
	var touched string
	if err := tx.QueryRow(ctx, sql, args...).Scan(&touched); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMessageNotFound
		}
		return err
	}
	return nil
}

func replaceTags(ctx context.Context, tx pgx.Tx, messageID string, tags []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM message_tags WHERE message_id = $1`, messageID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	if len(tags) == 0 {
		return nil
	}
	const q = `
		INSERT INTO message_tags (message_id, tag)
		SELECT $1, t FROM unnest($2::text[]) AS t
		ON CONFLICT DO NOTHING
	`
	if _, err := tx.Exec(ctx, q, messageID, tags); err != nil {
		return fmt.Errorf("insert tags: %w", err)
	}
	return nil
}

// IncrementViews bumps view_count without touching updated_at and returns the new count.
func (r *MessageRepository) IncrementViews(ctx context.Context, id string) (int64, error) {
	const q = `UPDATE messages SET view_count = view_count + 1 WHERE id = $1 RETURNING view_count`
	var count int64
	if err := r.pool.QueryRow(ctx, q, id).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrMessageNotFound
		}
		return 0, err
	}
	return count, nil
}

func (r *MessageRepository) SoftDelete(ctx context.Context, id string) error {
	const q = `
		UPDATE messages SET status = 'deleted', updated_at = NOW()
		WHERE id = $1 AND status <> 'deleted'
	`
	cmd, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}
