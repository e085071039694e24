package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/ports"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/storage"
)

// Store is a SQLite implementation of SecretStore
type Store struct {
	db *sql.DB
}

var _ ports.SecretStore = (*Store)(nil)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS secrets (
			identity TEXT NOT NULL,
			name TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (identity, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_secrets_updated ON secrets(updated_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) Secrets(ctx context.Context, identity string) (map[string]string, error) {
	query := `SELECT name, value FROM secrets WHERE identity = ?`

	rows, err := s.db.QueryContext(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to query secrets: %w", err)
	}
	defer rows.Close()

	secrets := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan secret: %w", err)
		}
		secrets[name] = value
	}

	return secrets, rows.Err()
}

func (s *Store) SetSecret(ctx context.Context, identity, name, value string) error {
	if err := storage.ValidateSecret(identity, name); err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `INSERT INTO secrets (identity, name, value, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?)
	          ON CONFLICT (identity, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, identity, name, value, now, now); err != nil {
		return fmt.Errorf("failed to set secret: %w", err)
	}

	return nil
}

func (s *Store) DeleteSecret(ctx context.Context, identity, name string) error {
	query := `DELETE FROM secrets WHERE identity = ? AND name = ?`

	if _, err := s.db.ExecContext(ctx, query, identity, name); err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	return nil
}

func (s *Store) ListSecrets(ctx context.Context, identity string) ([]ports.SecretInfo, error) {
	query := `SELECT name, updated_at FROM secrets WHERE identity = ? ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to query secrets: %w", err)
	}
	defer rows.Close()

	var infos []ports.SecretInfo
	for rows.Next() {
		var info ports.SecretInfo
		if err := rows.Scan(&info.Name, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan secret: %w", err)
		}
		infos = append(infos, info)
	}

	return infos, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
