package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bustrack/internal/models"
)

const sessionKeyPrefix = "session:"

// SessionRepository keeps sessions in redis. A key's TTL matches the
// session expiry, so expired sessions disappear on their own.
type SessionRepository struct {
	client *redis.Client
}

func NewSessionRepository(client *redis.Client) *SessionRepository {
	return &SessionRepository{client: client}
}

type sessionRecord struct {
	ID        string    `json:"id"`
	RiderID   string    `json:"riderId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IPAddress string    `json:"ip"`
	UserAgent string    `json:"ua"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (r *SessionRepository) Create(ctx context.Context, session models.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}

	payload, err := json.Marshal(sessionRecord{
		ID:        session.ID,
		RiderID:   session.RiderID,
		Name:      session.Name,
		Email:     session.Email,
		Role:      string(session.Role),
		IPAddress: session.IPAddress,
		UserAgent: session.UserAgent,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	return r.client.Set(ctx, sessionKeyPrefix+session.ID, payload, ttl).Err()
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (models.Session, error) {
	raw, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, err
	}

	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.Session{}, fmt.Errorf("decode session: %w", err)
	}

	return models.Session{
		ID:        rec.ID,
		RiderID:   rec.RiderID,
		Name:      rec.Name,
		Email:     rec.Email,
		Role:      models.RiderRole(rec.Role),
		IPAddress: rec.IPAddress,
		UserAgent: rec.UserAgent,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

func (r *SessionRepository) DeleteByID(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, sessionKeyPrefix+id).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
