package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"portfolio/internal/jobs"
	"portfolio/internal/metrics"
)

type TokenPurger interface {
	PurgeStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type ObjectRemover interface {
	Remove(ctx context.Context, bucket, key string) error
}

type Processor struct {
	tokens    TokenPurger
	objects   ObjectRemover
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

func NewProcessor(tokens TokenPurger, objects ObjectRemover, retention time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		tokens:    tokens,
		objects:   objects,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	task, err := jobs.Decode(msg.Values)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch task.Type {
	case jobs.TypePurgeRefreshTokens:
		err = p.purgeTokens(ctx)
	case jobs.TypeDeleteObject:
		err = p.deleteObject(ctx, task)
	default:
		p.logger.Warn().Str("type", task.Type).Str("message_id", msg.ID).Msg("unknown task type")
		metrics.JobsProcessed.WithLabelValues("unknown", "skipped").Inc()
		return nil
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.JobsProcessed.WithLabelValues(task.Type, result).Inc()
	return err
}

func (p *Processor) purgeTokens(ctx context.Context) error {
	cutoff := p.now().Add(-p.retention)
	n, err := p.tokens.PurgeStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge refresh tokens: %w", err)
	}
	p.logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("refresh tokens purged")
	return nil
}

func (p *Processor) deleteObject(ctx context.Context, task jobs.Task) error {
	if task.Bucket == "" || task.Object == "" {
		p.logger.Warn().Msg("delete_object task without bucket or object")
		return nil
	}
	if err := p.objects.Remove(ctx, task.Bucket, task.Object); err != nil {
		return err
	}
	p.logger.Info().Str("bucket", task.Bucket).Str("object", task.Object).Msg("object deleted")
	return nil
}
