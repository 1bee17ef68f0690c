package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"bustrack/internal/config"
	"bustrack/internal/ids"
	"bustrack/internal/models"
	"bustrack/internal/repository"
	"bustrack/internal/security"
)

type AuthService struct {
	riders   RiderStore
	sessions SessionStore
	cfg      config.SessionConfig
	log      zerolog.Logger
	now      func() time.Time

	// dummyHash keeps the unknown-email path as slow as a wrong password.
	dummyHash []byte
}

func NewAuthService(riders RiderStore, sessions SessionStore, cfg config.SessionConfig, log zerolog.Logger) *AuthService {
	dummy, err := hashPassword(ids.New())
	if err != nil {
		log.Warn().Err(err).Msg("dummy password hash unavailable")
	}
	return &AuthService{
		riders:    riders,
		sessions:  sessions,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		dummyHash: dummy,
	}
}

type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

type LoginResult struct {
	Token   string
	Session models.Session
	Rider   models.Rider
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return LoginResult{}, validationf("email and password are required")
	}

	rider, err := s.riders.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrRiderNotFound) {
			if s.dummyHash != nil {
				_, _ = security.VerifyPassword(input.Password, s.dummyHash)
			}
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	ok, err := security.VerifyPassword(input.Password, rider.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, ErrInvalidCredentials
	}

	now := s.now()
	session := models.Session{
		ID:        ids.New(),
		RiderID:   rider.ID,
		Name:      rider.Name,
		Email:     rider.Email,
		Role:      rider.Role,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	token, err := security.GenerateSessionToken(s.cfg.Secret, session.ID, rider.ID, string(rider.Role), session.ExpiresAt)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return LoginResult{}, err
	}

	s.log.Info().Str("rider_id", rider.ID).Str("role", string(rider.Role)).Msg("login")
	return LoginResult{Token: token, Session: session, Rider: rider}, nil
}

// Authenticate resolves a session cookie value. Every failure is
// ErrUnauthenticated except store outages.
func (s *AuthService) Authenticate(ctx context.Context, token string) (models.Session, error) {
	if token == "" {
		return models.Session{}, ErrUnauthenticated
	}
	claims, err := security.ParseSessionToken(token, s.cfg.Secret)
	if err != nil {
		return models.Session{}, ErrUnauthenticated
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return models.Session{}, ErrUnauthenticated
		}
		return models.Session{}, err
	}

	if session.RiderID != claims.RiderID {
		return models.Session{}, ErrUnauthenticated
	}
	if session.Expired(s.now()) {
		_ = s.sessions.DeleteByID(ctx, session.ID)
		return models.Session{}, ErrUnauthenticated
	}
	return session, nil
}

func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	err := s.sessions.DeleteByID(ctx, sessionID)
	if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return err
	}
	return nil
}

// hashPassword is swapped for cheaper parameters in tests.
var hashPassword = security.HashPassword

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var fieldRules = validator.New(validator.WithRequiredStructEnabled())

func validEmail(email string) bool {
	return fieldRules.Var(email, "required,email") == nil
}
