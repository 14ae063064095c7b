package ledger

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// LocalUser owns every record when no authentication is configured
const LocalUser = "local"

// Auth resolves the user a request acts for. Basic auth maps to Username,
// a bearer JWT maps to its subject claim. With neither configured every
// request runs as LocalUser.
type Auth struct {
	Username  string
	Password  string
	JWTSecret []byte
}

// Enabled reports whether any credential is configured
func (a Auth) Enabled() bool {
	return (a.Username != "" && a.Password != "") || len(a.JWTSecret) > 0
}

// Authenticate returns the user id for the request
func (a Auth) Authenticate(r *http.Request) (string, error) {
	if !a.Enabled() {
		return LocalUser, nil
	}

	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && len(a.JWTSecret) > 0 {
		return a.subject(token)
	}

	if a.Username != "" && a.Password != "" {
		user, pass, ok := r.BasicAuth()
		if ok &&
			subtle.ConstantTimeCompare([]byte(user), []byte(a.Username)) == 1 &&
			subtle.ConstantTimeCompare([]byte(pass), []byte(a.Password)) == 1 {
			return user, nil
		}
	}

	return "", errors.New("missing or invalid credentials")
}

func (a Auth) subject(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return a.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// withUser stores the authenticated user id in the context
func withUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// UserFromContext returns the authenticated user id
func UserFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userKey).(string); ok {
		return id
	}
	return LocalUser
}
