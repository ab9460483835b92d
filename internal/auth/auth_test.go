package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/kaanagar1/equimarket-sub000/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_RoundTrip(t *testing.T) {
	id := utils.NewSixID()
	token, err := GenerateJWT(id, RoleAdmin, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, "secret")
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())

	parsed, err := claims.ID()
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestJWT_Rejects(t *testing.T) {
	id := utils.NewSixID()

	t.Run("wrong secret", func(t *testing.T) {
		token, err := GenerateJWT(id, RoleUser, "secret", time.Hour)
		require.NoError(t, err)
		_, err = ValidateJWT(token, "other")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := GenerateJWT(id, RoleUser, "secret", -time.Minute)
		require.NoError(t, err)
		_, err = ValidateJWT(token, "secret")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ValidateJWT("not.a.token", "secret")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("hunter22", hash))
	assert.False(t, CheckPasswordHash("hunter23", hash))
	assert.False(t, CheckPasswordHash("", ""))

	_, err = HashPassword(strings.Repeat("a", MaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}
