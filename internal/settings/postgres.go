package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore keeps the settings record as a single JSONB row, mirroring
// the document style of the rest of the system.
type PostgresStore struct {
	db       *sql.DB
	defaults *Settings
}

func NewPostgresStore(databaseURL string, defaults *Settings) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS user_settings (
			id INT PRIMARY KEY DEFAULT 1,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT single_row CHECK (id = 1)
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}

	return &PostgresStore{db: db, defaults: defaults}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Load(ctx context.Context) (*Settings, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM user_settings WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return s.defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("corrupt settings row: %w", err)
	}
	return merge(&loaded, s.defaults), nil
}

func (s *PostgresStore) Save(ctx context.Context, settings *Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_settings (id, data, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET data = $1, updated_at = now()`, data)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
