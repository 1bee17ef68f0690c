package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bustrack/internal/models"
	"bustrack/internal/repository"
)

type counters struct {
	stored int
	pruned int64
}

func (c *counters) HistoryStoredInc()        { c.stored++ }
func (c *counters) HistoryPrunedAdd(n int64) { c.pruned += n }

func message(t *testing.T, taskType string, payload any) redis.XMessage {
	t.Helper()
	values, err := Values(taskType, payload)
	require.NoError(t, err)
	return redis.XMessage{ID: "1-0", Values: values}
}

func TestHandleLocationStoresRecord(t *testing.T) {
	store := repository.NewMemoryStore()
	m := &counters{}
	p := NewProcessor(store.History(), 24*time.Hour, m, zerolog.Nop())

	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	lat, lng := 12.9716, 77.5946
	rec := models.LocationRecord{BusID: "bus-1", Latitude: &lat, Longitude: &lng, Speed: 12, Status: models.BusStatusMoving, Source: "driver", RecordedAt: at}
	require.NoError(t, p.Handle(context.Background(), message(t, TypeLocation, rec)))

	counts, err := store.History().CountPerDay(context.Background(), at.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []models.DateCount{{Date: "2026-03-02", Count: 1}}, counts)
	assert.Equal(t, 1, m.stored)
}

func TestHandleLocationRejectsIncompleteRecord(t *testing.T) {
	p := NewProcessor(repository.NewMemoryStore().History(), time.Hour, nil, zerolog.Nop())

	err := p.Handle(context.Background(), message(t, TypeLocation, models.LocationRecord{Source: "driver"}))
	require.Error(t, err)

	err = p.Handle(context.Background(), redis.XMessage{Values: map[string]any{"type": TypeLocation, "payload": "{"}})
	require.Error(t, err)
}

func TestHandlePruneUsesRetention(t *testing.T) {
	store := repository.NewMemoryStore()
	m := &counters{}
	p := NewProcessor(store.History(), 48*time.Hour, m, zerolog.Nop())
	now := time.Date(2026, 3, 10, 3, 30, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	ctx := context.Background()
	for _, age := range []time.Duration{time.Hour, 47 * time.Hour, 49 * time.Hour, 30 * 24 * time.Hour} {
		require.NoError(t, p.LocationAccepted(ctx, models.LocationRecord{BusID: "bus-1", Source: "driver", RecordedAt: now.Add(-age)}))
	}

	require.NoError(t, p.Handle(ctx, redis.XMessage{Values: map[string]any{"type": TypePrune}}))
	assert.Equal(t, int64(2), m.pruned)

	require.NoError(t, p.Handle(ctx, message(t, TypePrune, PruneTask{Before: now})))
	assert.Equal(t, int64(4), m.pruned)
}

func TestHandleUnknownTypeIsIgnored(t *testing.T) {
	p := NewProcessor(repository.NewMemoryStore().History(), time.Hour, nil, zerolog.Nop())
	require.NoError(t, p.Handle(context.Background(), redis.XMessage{Values: map[string]any{"type": "thumbnail"}}))
}

func TestEnqueueRunsInline(t *testing.T) {
	store := repository.NewMemoryStore()
	m := &counters{}
	p := NewProcessor(store.History(), time.Hour, m, zerolog.Nop())
	now := time.Date(2026, 3, 10, 3, 30, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, p.LocationAccepted(ctx, models.LocationRecord{BusID: "bus-1", Source: "driver", RecordedAt: now.Add(-2 * time.Hour)}))

	id, err := p.Enqueue(ctx, TypePrune, PruneTask{})
	require.NoError(t, err)
	assert.Equal(t, "inline", id)
	assert.Equal(t, int64(1), m.pruned)

	_, err = p.Enqueue(ctx, TypeLocation, models.LocationRecord{})
	require.Error(t, err)
}
