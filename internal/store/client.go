package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/clubnotify/internal/model"
)

// ErrInvalidAPIKey is returned when a key is malformed, unknown, or does not
// match its client's stored hash.
var ErrInvalidAPIKey = errors.New("invalid api key")

const clientCols = `id, name, key_hash, created_at, last_used_at`

type ClientStore struct {
	db *sql.DB
}

func NewClientStore(db *sql.DB) *ClientStore {
	return &ClientStore{db: db}
}

func scanClient(scanner interface{ Scan(...any) error }) (*model.APIClient, error) {
	var c model.APIClient
	var lastUsed sql.NullTime
	if err := scanner.Scan(&c.ID, &c.Name, &c.KeyHash, &c.CreatedAt, &lastUsed); err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		c.LastUsedAt = &lastUsed.Time
	}
	return &c, nil
}

func generateSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Create registers a client and returns its API key in the form
// "<name>.<secret>". Only a bcrypt hash of the secret is stored, so the key
// cannot be recovered later.
func (s *ClientStore) Create(name string) (string, *model.APIClient, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, ".") {
		return "", nil, fmt.Errorf("create api client: invalid name %q", name)
	}

	secret, err := generateSecret()
	if err != nil {
		return "", nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash secret: %w", err)
	}

	if _, err := s.db.Exec(`INSERT INTO api_clients (name, key_hash) VALUES (?, ?)`, name, string(hash)); err != nil {
		return "", nil, fmt.Errorf("create api client: %w", err)
	}

	c, err := s.GetByName(name)
	if err != nil {
		return "", nil, err
	}
	return name + "." + secret, c, nil
}

func (s *ClientStore) GetByName(name string) (*model.APIClient, error) {
	c, err := scanClient(s.db.QueryRow(`SELECT `+clientCols+` FROM api_clients WHERE name = ?`, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get api client: %w", err)
	}
	return c, nil
}

// Authenticate resolves an API key to its client.
func (s *ClientStore) Authenticate(key string) (*model.APIClient, error) {
	name, secret, ok := strings.Cut(key, ".")
	if !ok || name == "" || secret == "" {
		return nil, ErrInvalidAPIKey
	}

	c, err := s.GetByName(name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrInvalidAPIKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.KeyHash), []byte(secret)); err != nil {
		return nil, ErrInvalidAPIKey
	}
	return c, nil
}

func (s *ClientStore) TouchLastUsed(id int64) error {
	_, err := s.db.Exec(`UPDATE api_clients SET last_used_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch api client: %w", err)
	}
	return nil
}

func (s *ClientStore) List() ([]model.APIClient, error) {
	rows, err := s.db.Query(`SELECT ` + clientCols + ` FROM api_clients ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list api clients: %w", err)
	}
	defer rows.Close()

	var clients []model.APIClient
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api client: %w", err)
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

func (s *ClientStore) Delete(name string) error {
	_, err := s.db.Exec(`DELETE FROM api_clients WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete api client: %w", err)
	}
	return nil
}
