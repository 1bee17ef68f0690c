package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"bustrack/internal/models"
	"bustrack/internal/tasks"
)

// approxMaxLen caps the stream so an absent worker cannot grow it without
// bound.
const approxMaxLen = 100_000

type ProducerMetrics interface {
	HistoryEnqueuedInc()
}

type Producer struct {
	client  *redis.Client
	stream  string
	metrics ProducerMetrics
}

func NewProducer(client *redis.Client, stream string, metrics ProducerMetrics) *Producer {
	return &Producer{client: client, stream: stream, metrics: metrics}
}

func (p *Producer) Enqueue(ctx context.Context, taskType string, payload any) (string, error) {
	values, err := tasks.Values(taskType, payload)
	if err != nil {
		return "", err
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: approxMaxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return id, nil
}

// LocationAccepted appends rec to the history stream for the worker.
func (p *Producer) LocationAccepted(ctx context.Context, rec models.LocationRecord) error {
	if _, err := p.Enqueue(ctx, tasks.TypeLocation, rec); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.HistoryEnqueuedInc()
	}
	return nil
}
