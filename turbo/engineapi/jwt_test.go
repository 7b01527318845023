package engineapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, secret []byte, iat time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iat": iat.Unix()})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestCheckBearerAcceptsFreshToken(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, secret, time.Now()))
	require.NoError(t, checkBearer(req, secret))
}

func TestCheckBearerRejectsStaleToken(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, secret, time.Now().Add(-5*time.Minute)))
	require.Error(t, checkBearer(req, secret))
}

func TestCheckBearerRejectsMissingHeader(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.ErrorIs(t, checkBearer(req, secret), errMissingAuth)
}

func TestCheckBearerRejectsWrongSecret(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	other := []byte("fedcba9876543210fedcba9876543210")
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, secret, time.Now()))
	require.Error(t, checkBearer(req, other))
}
