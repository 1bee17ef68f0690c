package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bustrack/internal/tasks"
)

type fakeQueue struct {
	types []string
	err   error
}

func (q *fakeQueue) Enqueue(_ context.Context, taskType string, _ any) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.types = append(q.types, taskType)
	return "1-0", nil
}

func TestEnqueuePrune(t *testing.T) {
	q := &fakeQueue{}
	s := NewScheduler(q, "0 30 3 * * *", zerolog.Nop())

	s.enqueuePrune()
	assert.Equal(t, []string{tasks.TypePrune}, q.types)

	q.err = errors.New("redis down")
	s.enqueuePrune()
	assert.Len(t, q.types, 1)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&fakeQueue{}, "every night", zerolog.Nop())
	require.Error(t, s.Start())
}

func TestStartWithoutQueueIsNoop(t *testing.T) {
	s := NewScheduler(nil, "0 30 3 * * *", zerolog.Nop())
	require.NoError(t, s.Start())
	s.Stop()
}

func TestStartAndStop(t *testing.T) {
	s := NewScheduler(&fakeQueue{}, "0 30 3 * * *", zerolog.Nop())
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 1)
	s.Stop()
}
