package api

import (
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// basicAuth enforces HTTP basic authentication against the users from the
// config. Passwords are verified against their bcrypt hashes.
func (s *server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			s.unauthorized(w, "authentication required")

			return
		}

		for _, user := range s.cfg.API.Auth.Users {
			if user.Username != username {
				continue
			}

			if bcrypt.CompareHashAndPassword(
				[]byte(user.PasswordHash), []byte(password),
			) == nil {
				next.ServeHTTP(w, r)

				return
			}

			break
		}

		s.unauthorized(w, "invalid credentials")
	})
}

func (s *server) unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="vibe-check"`)
	writeJSON(w, http.StatusUnauthorized, errorResponse{msg})
}
