package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	a := NewAuthenticator("secret", "voxchat")

	token, err := a.Issue("user-1", time.Hour)
	require.NoError(t, err)

	owner, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", owner)

	owner, err = a.Authenticate("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", owner)
}

func TestVerifyRejects(t *testing.T) {
	a := NewAuthenticator("secret", "voxchat")
	valid, err := a.Issue("user-1", time.Hour)
	require.NoError(t, err)

	forged, err := NewAuthenticator("other-secret", "voxchat").Issue("user-1", time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := NewAuthenticator("secret", "someone-else").Issue("user-1", time.Hour)
	require.NoError(t, err)

	expiring := NewAuthenticator("secret", "voxchat")
	expiring.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiring.Issue("user-1", time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1", Issuer: "voxchat"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Issuer: "voxchat"}).
		SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":      "not-a-token",
		"forged":       forged,
		"wrong issuer": wrongIssuer,
		"expired":      expired,
		"alg none":     none,
		"no subject":   noSubject,
		"truncated":    valid[:len(valid)-4],
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := a.Verify(token)
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestIssueRequiresOwner(t *testing.T) {
	_, err := NewAuthenticator("secret", "voxchat").Issue("", time.Hour)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, "header %q", tt.header)
		assert.Equal(t, tt.want, got, "header %q", tt.header)
	}
}

func TestAuthenticateMissingHeader(t *testing.T) {
	_, err := NewAuthenticator("secret", "voxchat").Authenticate("")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestOwnerContext(t *testing.T) {
	_, ok := OwnerFrom(context.Background())
	assert.False(t, ok)

	owner, ok := OwnerFrom(WithOwner(context.Background(), "user-9"))
	assert.True(t, ok)
	assert.Equal(t, "user-9", owner)
}
