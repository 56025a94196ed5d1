// ABOUTME: Tests for JWT minting and verification
// ABOUTME: Covers round-trips, expiration, tampering, and claim validation

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	t.Run("contact", func(t *testing.T) {
		token, err := v.Generate(&Identity{Role: RoleContact, ContactID: 42}, time.Hour)
		require.NoError(t, err)

		identity, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, RoleContact, identity.Role)
		assert.Equal(t, int64(42), identity.ContactID)
		assert.False(t, identity.IsStaff())
	})

	t.Run("staff", func(t *testing.T) {
		token, err := v.Generate(&Identity{Role: RoleStaff, StaffID: 7}, time.Hour)
		require.NoError(t, err)

		identity, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, RoleStaff, identity.Role)
		assert.Equal(t, int64(7), identity.StaffID)
		assert.True(t, identity.IsStaff())
	})
}

func TestJWTVerifier_Expired(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate(&Identity{Role: RoleStaff, StaffID: 7}, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	other := NewJWTVerifier([]byte("other-secret"))

	token, err := v.Generate(&Identity{Role: RoleContact, ContactID: 1}, time.Hour)
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_Garbage(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	_, err := v.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_ZeroSubjectRejected(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	_, err := v.Generate(&Identity{Role: RoleStaff, StaffID: 0}, time.Hour)
	assert.Error(t, err)
}

func TestJWTVerifier_BadClaims(t *testing.T) {
	secret := []byte("test-secret")
	v := NewJWTVerifier(secret)

	sign := func(claims jwt.MapClaims) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString(secret)
		require.NoError(t, err)
		return signed
	}

	now := time.Now()

	t.Run("missing role", func(t *testing.T) {
		_, err := v.Verify(sign(jwt.MapClaims{
			"sub": "5", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix(),
		}))
		assert.ErrorIs(t, err, ErrMissingClaim)
	})

	t.Run("missing sub", func(t *testing.T) {
		_, err := v.Verify(sign(jwt.MapClaims{
			"role": "staff", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix(),
		}))
		assert.ErrorIs(t, err, ErrMissingClaim)
	})

	t.Run("non-numeric sub", func(t *testing.T) {
		_, err := v.Verify(sign(jwt.MapClaims{
			"sub": "abc", "role": "staff", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix(),
		}))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := v.Verify(sign(jwt.MapClaims{
			"sub": "5", "role": "superuser", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix(),
		}))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
