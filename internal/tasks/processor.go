package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bustrack/internal/models"
)

const (
	TypeLocation = "location"
	TypePrune    = "prune"
)

// PruneTask deletes history recorded before Before. A zero Before means
// now minus the processor's retention.
type PruneTask struct {
	Before time.Time `json:"before"`
}

type HistoryStore interface {
	Insert(ctx context.Context, rec models.LocationRecord) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Metrics interface {
	HistoryStoredInc()
	HistoryPrunedAdd(n int64)
}

type Processor struct {
	history   HistoryStore
	retention time.Duration
	metrics   Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// Values encodes a task as stream fields.
func Values(taskType string, payload any) (map[string]any, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s task: %w", taskType, err)
	}
	return map[string]any{"type": taskType, "payload": string(b)}, nil
}

func NewProcessor(history HistoryStore, retention time.Duration, metrics Metrics, logger zerolog.Logger) *Processor {
	return &Processor{
		history:   history,
		retention: retention,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	taskType, _ := msg.Values["type"].(string)
	raw, _ := msg.Values["payload"].(string)

	switch taskType {
	case TypeLocation:
		return p.handleLocation(ctx, raw)
	case TypePrune:
		return p.handlePrune(ctx, raw)
	default:
		p.logger.Warn().Str("type", taskType).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

// Enqueue runs the task immediately. It lets the scheduler drive the
// processor in deployments without a Redis stream.
func (p *Processor) Enqueue(ctx context.Context, taskType string, payload any) (string, error) {
	values, err := Values(taskType, payload)
	if err != nil {
		return "", err
	}
	if err := p.Handle(ctx, redis.XMessage{ID: "inline", Values: values}); err != nil {
		return "", err
	}
	return "inline", nil
}

func (p *Processor) handleLocation(ctx context.Context, raw string) error {
	var rec models.LocationRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return fmt.Errorf("decode location: %w", err)
	}
	return p.LocationAccepted(ctx, rec)
}

// LocationAccepted stores rec directly. Without a stream the API process
// uses the processor itself as its history sink.
func (p *Processor) LocationAccepted(ctx context.Context, rec models.LocationRecord) error {
	if rec.BusID == "" || rec.RecordedAt.IsZero() {
		return errors.New("location record missing bus id or timestamp")
	}
	if err := p.history.Insert(ctx, rec); err != nil {
		return fmt.Errorf("store location: %w", err)
	}
	if p.metrics != nil {
		p.metrics.HistoryStoredInc()
	}
	return nil
}

func (p *Processor) handlePrune(ctx context.Context, raw string) error {
	var task PruneTask
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			return fmt.Errorf("decode prune: %w", err)
		}
	}
	cutoff := task.Before
	if cutoff.IsZero() {
		if p.retention <= 0 {
			p.logger.Info().Msg("history retention disabled, skipping prune")
			return nil
		}
		cutoff = p.now().Add(-p.retention)
	}

	n, err := p.history.PruneBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	if p.metrics != nil {
		p.metrics.HistoryPrunedAdd(n)
	}
	p.logger.Info().Int64("rows", n).Time("cutoff", cutoff).Msg("history pruned")
	return nil
}
