package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("s3cret")
	tok, err := v.Issue(Caller{ID: "tenant-1", Role: RoleTenant}, time.Hour)
	require.NoError(t, err)

	c, err := v.Verify("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", c.ID)
	assert.Equal(t, RoleTenant, c.Role)
	assert.True(t, c.IsTenant())
	assert.False(t, c.IsAdmin())
}

func TestVerifier_Expired(t *testing.T) {
	v := NewVerifier("s3cret")
	tok, err := v.Issue(Caller{ID: "admin-1", Role: RoleAdmin}, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(tok)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifier_WrongSecret(t *testing.T) {
	tok, err := NewVerifier("one").Issue(Caller{ID: "admin-1", Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)

	_, err = NewVerifier("two").Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_RejectsSystemRole(t *testing.T) {
	v := NewVerifier("s3cret")
	tok, err := v.Issue(System, time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_Missing(t *testing.T) {
	_, err := NewVerifier("s3cret").Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" Admin ")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, r)

	_, ok = ParseRole("staff")
	assert.False(t, ok)
}
