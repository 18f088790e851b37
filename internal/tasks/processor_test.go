package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/internal/jobs"
)

type fakePurger struct {
	cutoff time.Time
	err    error
}

func (f *fakePurger) PurgeStale(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

type fakeRemover struct {
	removed []string
}

func (f *fakeRemover) Remove(_ context.Context, bucket, key string) error {
	f.removed = append(f.removed, bucket+"/"+key)
	return nil
}

func newTestProcessor(purger *fakePurger, remover *fakeRemover) *Processor {
	p := NewProcessor(purger, remover, 720*time.Hour, zerolog.Nop())
	p.now = func() time.Time { return time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC) }
	return p
}

func TestPurgeUsesRetentionCutoff(t *testing.T) {
	purger := &fakePurger{}
	p := newTestProcessor(purger, &fakeRemover{})

	err := p.Handle(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]interface{}{"type": jobs.TypePurgeRefreshTokens}})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), purger.cutoff)
}

func TestPurgeErrorLeavesEntryPending(t *testing.T) {
	p := newTestProcessor(&fakePurger{err: errors.New("db down")}, &fakeRemover{})
	err := p.Handle(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]interface{}{"type": jobs.TypePurgeRefreshTokens}})
	assert.Error(t, err)
}

func TestDeleteObject(t *testing.T) {
	remover := &fakeRemover{}
	p := newTestProcessor(&fakePurger{}, remover)

	err := p.Handle(context.Background(), redis.XMessage{ID: "2-0", Values: map[string]interface{}{
		"type": jobs.TypeDeleteObject, "bucket": "avatars", "object": "avatars/u1/old.png",
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"avatars/avatars/u1/old.png"}, remover.removed)
}

func TestUnknownTaskIsAcked(t *testing.T) {
	p := newTestProcessor(&fakePurger{}, &fakeRemover{})
	err := p.Handle(context.Background(), redis.XMessage{ID: "3-0", Values: map[string]interface{}{"type": "resize"}})
	assert.NoError(t, err)
}
