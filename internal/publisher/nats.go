// Package publisher mirrors accepted bus locations onto NATS.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"bustrack/internal/models"
)

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	NATSSetConnected(connected bool)
}

// Conn is the slice of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

type NATSPublisher struct {
	nc      *nats.Conn
	conn    Conn
	prefix  string
	metrics PublisherMetrics
	log     zerolog.Logger
}

type LocationMessage struct {
	BusID      string           `json:"busId"`
	Latitude   *float64         `json:"latitude,omitempty"`
	Longitude  *float64         `json:"longitude,omitempty"`
	Speed      float64          `json:"speed"`
	Status     models.BusStatus `json:"status"`
	Source     string           `json:"source"`
	RecordedAt time.Time        `json:"recordedAt"`
}

func NewNATSPublisher(url string, prefix string, m PublisherMetrics, log zerolog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("bustrack-api"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Info().Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Info().Msg("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	p := NewPublisher(nc, prefix, m, log)
	p.nc = nc
	return p, nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, prefix string, m PublisherMetrics, log zerolog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "bus"
	}
	return &NATSPublisher{conn: conn, prefix: prefix, metrics: m, log: log}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// Subject is <prefix>.<busId>.location.
func (p *NATSPublisher) Subject(busID string) string {
	return fmt.Sprintf("%s.%s.location", p.prefix, subjectToken(busID))
}

// LocationAccepted publishes rec on the bus's location subject.
func (p *NATSPublisher) LocationAccepted(_ context.Context, rec models.LocationRecord) error {
	b, err := json.Marshal(LocationMessage(rec))
	if err != nil {
		return err
	}
	err = p.conn.Publish(p.Subject(rec.BusID), b)
	if p.metrics != nil {
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publish location: %w", err)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS tokens cannot contain spaces, '>', '*' or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
