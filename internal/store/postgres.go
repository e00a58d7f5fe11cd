package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"kisscoffee/site/internal/settings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Fetch returns the settings document, creating the default one when the row
// does not exist yet. Concurrent first fetches converge on a single row.
func (s *PostgresStore) Fetch(ctx context.Context) (settings.Settings, error) {
	defaults, err := json.Marshal(settings.Default())
	if err != nil {
		return settings.Settings{}, opError("fetch", fmt.Errorf("encode defaults: %w", err))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return settings.Settings{}, opError("fetch", fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO admin_documents (collection, key, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, key) DO NOTHING
	`, settings.Collection, settings.Key, string(defaults)); err != nil {
		return settings.Settings{}, opError("fetch", fmt.Errorf("ensure document: %w", err))
	}

	var raw []byte
	err = tx.QueryRowContext(ctx, `
		SELECT data FROM admin_documents WHERE collection=$1 AND key=$2
	`, settings.Collection, settings.Key).Scan(&raw)
	if err != nil {
		return settings.Settings{}, opError("fetch", fmt.Errorf("read document: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return settings.Settings{}, opError("fetch", fmt.Errorf("commit: %w", err))
	}

	var doc settings.Settings
	if err := json.Unmarshal(raw, &doc); err != nil {
		return settings.Settings{}, opError("fetch", fmt.Errorf("decode document: %w", err))
	}
	return doc.Normalized(), nil
}

// Save merges the present top-level fields of patch into the stored document.
// Fields absent from patch keep their stored value.
func (s *PostgresStore) Save(ctx context.Context, patch settings.Patch) error {
	if patch.Empty() {
		return nil
	}
	fields, err := patch.Fields()
	if err != nil {
		return opError("save", err)
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return opError("save", fmt.Errorf("encode patch: %w", err))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO admin_documents (collection, key, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, key)
		DO UPDATE SET data = admin_documents.data || EXCLUDED.data, updated_at = NOW()
	`, settings.Collection, settings.Key, string(payload))
	if err != nil {
		return opError("save", fmt.Errorf("merge document: %w", err))
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, role, created_at, updated_at
		FROM users WHERE LOWER(email) = LOWER($1)
	`, strings.TrimSpace(email)))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, role, created_at, updated_at
		FROM users WHERE id = $1
	`, id))
}

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// UpsertUser inserts the user or replaces the credentials and role of the
// account with the same email.
func (s *PostgresStore) UpsertUser(ctx context.Context, user User) (User, error) {
	var saved User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ((LOWER(email))) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			updated_at = NOW()
		RETURNING id, email, display_name, password_hash, role, created_at, updated_at
	`, user.ID, strings.TrimSpace(user.Email), user.DisplayName, user.PasswordHash, user.Role).Scan(
		&saved.ID, &saved.Email, &saved.DisplayName, &saved.PasswordHash, &saved.Role, &saved.CreatedAt, &saved.UpdatedAt,
	)
	if err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}
	return saved, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
