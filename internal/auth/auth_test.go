package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("s3cret")

	token, err := v.Issue("user-1", true, time.Minute)
	require.NoError(t, err)

	claims, err := v.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.User())
	assert.True(t, claims.IsAdmin)
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("s3cret")
	other := NewVerifier("different")

	forged, err := other.Issue("user-1", true, time.Minute)
	require.NoError(t, err)
	expired, err := v.Issue("user-1", false, -time.Minute)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"wrong secret": forged,
		"expired":      expired,
		"alg none":     none,
		"garbage":      "not.a.token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Parse(token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifier_DisabledWithoutSecret(t *testing.T) {
	v := NewVerifier("")
	assert.False(t, v.Enabled())

	_, err := v.Parse("anything")
	require.ErrorIs(t, err, ErrNoToken)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=query", nil)
	assert.Equal(t, "query", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer header")
	assert.Equal(t, "header", TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "cookie"})
	assert.Equal(t, "cookie", TokenFromRequest(r))
}
