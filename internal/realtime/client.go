package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bustrack/internal/config"
	"bustrack/internal/ids"
	"bustrack/internal/models"
	"bustrack/internal/service"
)

const maxMessageBytes = 8 << 10

var (
	ErrClientClosed = errors.New("client closed")
	ErrSlowClient   = errors.New("client send buffer full")
)

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type roomRequest struct {
	BusID string `json:"busId" validate:"required"`
}

// Client is one websocket connection. Events queue on a bounded buffer
// drained by a single writer goroutine.
type Client struct {
	id        string
	conn      *websocket.Conn
	session   models.Session
	origin    string
	channel   *Channel
	send      chan Event
	done      chan struct{}
	closeOnce sync.Once
	writeWait time.Duration
	pongWait  time.Duration
	log       zerolog.Logger
}

func NewClient(conn *websocket.Conn, session models.Session, origin string, channel *Channel, cfg config.TrackingConfig, log zerolog.Logger) *Client {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 64
	}
	writeWait := cfg.WriteWait
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	pongWait := cfg.PongWait
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}

	id := ids.New()
	return &Client{
		id:        id,
		conn:      conn,
		session:   session,
		origin:    origin,
		channel:   channel,
		send:      make(chan Event, buffer),
		done:      make(chan struct{}),
		writeWait: writeWait,
		pongWait:  pongWait,
		log: log.With().
			Str("conn_id", id).
			Str("rider_id", session.RiderID).
			Str("role", string(session.Role)).
			Logger(),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Send(ev Event) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- ev:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSlowClient
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Serve runs the connection until the peer goes away or ctx ends. It
// blocks on the read loop; writes happen on a separate goroutine.
func (c *Client) Serve(ctx context.Context) {
	c.log.Debug().Msg("websocket connected")
	c.channel.Connect(ctx, c.session, c)

	go c.writePump()
	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-c.done:
		}
	}()

	c.readPump(ctx)

	c.close()
	c.channel.Disconnect(context.WithoutCancel(ctx), c.session, c)
	c.log.Debug().Msg("websocket disconnected")
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.fail("", validationError("malformed frame"))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		c.dispatch(ctx, msg)
	}
}

func (c *Client) dispatch(ctx context.Context, msg inbound) {
	switch msg.Event {
	case EventJoinBusRoom, EventLeaveBusRoom:
		var req roomRequest
		if err := c.decode(msg.Data, &req); err != nil {
			c.fail(msg.Event, err)
			return
		}
		if msg.Event == EventLeaveBusRoom {
			c.channel.Unsubscribe(c, req.BusID)
			return
		}
		if err := c.channel.Subscribe(ctx, &c.session, c, req.BusID); err != nil {
			c.fail(msg.Event, err)
		}
	case EventDriverLocation:
		var payload LocationPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.fail(msg.Event, validationError("malformed location payload"))
			return
		}
		ack, err := c.channel.SubmitLocation(ctx, &c.session, c.origin, payload)
		if err != nil {
			c.fail(msg.Event, err)
			return
		}
		_ = c.Send(Event{Name: EventLocationAck, Data: ack})
	default:
		c.fail(msg.Event, validationError("unknown event"))
	}
}

func (c *Client) decode(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return validationError("malformed payload")
	}
	if err := c.channel.validate.Struct(dst); err != nil {
		return validationError(err.Error())
	}
	return nil
}

// fail reports err to the peer and keeps the connection open.
func (c *Client) fail(event string, err error) {
	code := service.Code(err)
	if code == "internal_error" {
		c.log.Error().Err(err).Str("event", event).Msg("websocket request failed")
	}
	_ = c.Send(Event{Name: EventError, Data: ErrorPayload{Event: event, Code: code, Message: err.Error()}})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeWait))
			return
		}
	}
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", service.ErrValidation, msg)
}
