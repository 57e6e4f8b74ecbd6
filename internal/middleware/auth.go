package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/clubnotify/internal/auth"
	"github.com/dukerupert/clubnotify/internal/model"
	"github.com/dukerupert/clubnotify/internal/store"
)

// APIKeyHeader carries the "<name>.<secret>" key issued to a client.
const APIKeyHeader = "X-API-Key"

// ClientAuthenticator resolves API keys to clients.
type ClientAuthenticator interface {
	Authenticate(key string) (*model.APIClient, error)
	TouchLastUsed(id int64) error
}

// RequireAPIKey validates the X-API-Key header and populates ClientContext.
func RequireAPIKey(clients ClientAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}

			c, err := clients.Authenticate(key)
			if err != nil {
				if !errors.Is(err, store.ErrInvalidAPIKey) {
					logger.Error("authenticate api client", "error", err)
					writeError(w, http.StatusInternalServerError, "internal error")
					return
				}
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			if err := clients.TouchLastUsed(c.ID); err != nil {
				logger.Warn("touch api client", "client", c.Name, "error", err)
			}

			annotateClient(r.Context(), c.Name)
			ctx := auth.WithClient(r.Context(), auth.ClientContext{ClientID: c.ID, Name: c.Name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
