package engineapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/julienschmidt/httprouter"
)

const clockDrift = 60 * time.Second

var (
	errMissingAuth = errors.New("engineapi: missing bearer token")
	errBadClaims   = errors.New("engineapi: stale or future iat claim")
)

// jwtAuth wraps an httprouter handler with Engine API bearer-token
// authentication (spec §A.4.6 via the retrieved engine_server.go's
// EngineServerConfig.JwtSecret): every request must carry a JWT signed
// with the shared secret and an `iat` claim within one minute of now.
func jwtAuth(secret []byte, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := checkBearer(r, secret); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next(w, r, ps)
	}
}

func checkBearer(r *http.Request, secret []byte) error {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return errMissingAuth
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("engineapi: unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return err
	}

	iat, ok := claims["iat"].(float64)
	if !ok {
		return errBadClaims
	}
	issuedAt := time.Unix(int64(iat), 0)
	if time.Since(issuedAt).Abs() > clockDrift {
		return errBadClaims
	}
	return nil
}
