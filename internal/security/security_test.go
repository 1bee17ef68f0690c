package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastParams = Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPasswordWithParams("driver123", fastParams)
	require.NoError(t, err)
	assert.Contains(t, string(hash), "$argon2id$v=19$t=1,m=8192,p=1$")

	ok, err := VerifyPassword("driver123", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("driver124", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordSaltsDiffer(t *testing.T) {
	a, err := HashPasswordWithParams("same", fastParams)
	require.NoError(t, err)
	b, err := HashPasswordWithParams("same", fastParams)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyPasswordMalformed(t *testing.T) {
	for _, encoded := range []string{"", "plain", "$bcrypt$v=19$t=1,m=1,p=1$a$b", "$argon2id$v=19$garbage$a$b"} {
		_, err := VerifyPassword("x", []byte(encoded))
		assert.Error(t, err, encoded)
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	token, err := GenerateSessionToken("secret", "sess-1", "rider-1", "driver", time.Now().Add(time.Hour))
	require.NoError(t, err)

	claims, err := ParseSessionToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "rider-1", claims.RiderID)
	assert.Equal(t, "driver", claims.Role)
}

func TestSessionTokenRejects(t *testing.T) {
	token, err := GenerateSessionToken("secret", "sess-1", "rider-1", "driver", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = ParseSessionToken(token, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := GenerateSessionToken("secret", "sess-1", "rider-1", "driver", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = ParseSessionToken(expired, "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
