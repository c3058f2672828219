package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/KyleBrandon/planty/pkg/utils"
)

var (
	ErrNoAuthHeader  = errors.New("authorization header not found")
	ErrInvalidApiKey = errors.New("invalid api key")
)

func ParseApiKey(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrNoAuthHeader
	}

	var apiKey string
	n, err := fmt.Sscanf(authHeader, "ApiKey %s", &apiKey)
	if n != 1 || err != nil {
		return "", ErrNoAuthHeader
	}

	return apiKey, nil
}

// RequireApiKey rejects requests that do not carry apiKey. An empty apiKey disables the check.
func RequireApiKey(apiKey string, next http.HandlerFunc) http.HandlerFunc {
	if apiKey == "" {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) {
		key, err := ParseApiKey(r)
		if err != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "not authorized", err)
			return
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			utils.RespondWithError(w, http.StatusForbidden, "not authorized", ErrInvalidApiKey)
			return
		}

		next(w, r)
	}
}
