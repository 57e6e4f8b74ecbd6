package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/clubnotify/internal/auth"
	"github.com/dukerupert/clubnotify/internal/database"
	"github.com/dukerupert/clubnotify/internal/model"
	"github.com/dukerupert/clubnotify/internal/store"
)

func setupClientStore(t *testing.T) *store.ClientStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewClientStore(db)
}

func TestRequireAPIKeyMissing(t *testing.T) {
	cs := setupClientStore(t)

	handler := RequireAPIKey(cs, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("POST", "/api/decide", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestRequireAPIKeyInvalid(t *testing.T) {
	cs := setupClientStore(t)
	cs.Create("svc")

	handler := RequireAPIKey(cs, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	for _, key := range []string{"garbage", "svc.wrong", "nobody.secret"} {
		req := httptest.NewRequest("POST", "/api/decide", nil)
		req.Header.Set(APIKeyHeader, key)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("key %q: status = %d, want %d", key, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestRequireAPIKeyValid(t *testing.T) {
	cs := setupClientStore(t)
	key, c, err := cs.Create("svc")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	var got auth.ClientContext
	handler := RequireAPIKey(cs, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/api/decide", nil)
	req.Header.Set(APIKeyHeader, key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got.ClientID != c.ID || got.Name != "svc" {
		t.Errorf("client context = %+v", got)
	}

	stored, _ := cs.GetByName("svc")
	if stored.LastUsedAt == nil {
		t.Error("expected last_used_at to be updated")
	}
}

type brokenAuthenticator struct{}

func (brokenAuthenticator) Authenticate(string) (*model.APIClient, error) {
	return nil, errors.New("database is locked")
}
func (brokenAuthenticator) TouchLastUsed(int64) error { return nil }

func TestRequireAPIKeyStoreError(t *testing.T) {
	handler := RequireAPIKey(brokenAuthenticator{}, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("POST", "/api/decide", nil)
	req.Header.Set(APIKeyHeader, "svc.secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}
