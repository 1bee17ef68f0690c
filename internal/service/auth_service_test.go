package service

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bustrack/internal/config"
	"bustrack/internal/security"
)

func newAuth(f *fixture) *AuthService {
	return NewAuthService(f.store.Riders(), f.store.Sessions(), config.SessionConfig{Secret: "test-secret", TTL: time.Hour}, zerolog.Nop())
}

func TestLoginAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	auth := newAuth(f)

	result, err := auth.Login(f.ctx, LoginInput{Email: "  Driver@Campus.edu ", Password: "driver123", IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, f.driver.ID, result.Rider.ID)
	assert.NotEmpty(t, result.Token)

	session, err := auth.Authenticate(f.ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, f.driver.ID, session.RiderID)
	assert.Equal(t, "driver", string(session.Role))
	assert.Equal(t, "10.0.0.1", session.IPAddress)

	require.NoError(t, auth.Logout(f.ctx, session.ID))
	_, err = auth.Authenticate(f.ctx, result.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	require.NoError(t, auth.Logout(f.ctx, session.ID), "logout is idempotent")
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	auth := newAuth(f)

	_, err := auth.Login(f.ctx, LoginInput{Email: "driver@campus.edu", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(f.ctx, LoginInput{Email: "nobody@campus.edu", Password: "driver123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(f.ctx, LoginInput{Email: "driver@campus.edu"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAuthenticateRejectsForgedAndExpired(t *testing.T) {
	f := newFixture(t)
	auth := newAuth(f)

	_, err := auth.Authenticate(f.ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	forged, err := security.GenerateSessionToken("other-secret", "sid", f.driver.ID, "admin", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = auth.Authenticate(f.ctx, forged)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	result, err := auth.Login(f.ctx, LoginInput{Email: "driver@campus.edu", Password: "driver123"})
	require.NoError(t, err)
	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = auth.Authenticate(f.ctx, result.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
