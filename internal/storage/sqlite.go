package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/shikibetsu/internal/models"
)

// SQLiteDataset implements Dataset using SQLite. Row order is the AUTOINCREMENT sequence.
type SQLiteDataset struct {
	db   *sql.DB
	path string
}

// NewSQLiteDataset opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteDataset(dbPath string) (*SQLiteDataset, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps transactions and reads strictly ordered.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteDataset{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS examples (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		label TEXT NOT NULL,
		vector BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (text, label)
	);

	CREATE INDEX IF NOT EXISTS idx_examples_label ON examples(label);
	`
	_, err := db.Exec(schema)
	return err
}

// Load returns all examples ordered by insertion.
func (s *SQLiteDataset) Load(ctx context.Context) ([]models.Example, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT text, label, vector FROM examples ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var examples []models.Example
	for rows.Next() {
		var ex models.Example
		var blob []byte
		if err := rows.Scan(&ex.Text, &ex.Label, &blob); err != nil {
			return nil, err
		}
		if ex.Vector, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("example %s: %w", ex.Key(), err)
		}
		examples = append(examples, ex)
	}
	return examples, rows.Err()
}

// Append inserts examples in one transaction.
func (s *SQLiteDataset) Append(ctx context.Context, examples []models.Example) error {
	if len(examples) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO examples (text, label, vector, created_at) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, ex := range examples {
		if _, err := stmt.ExecContext(ctx, ex.Text, ex.Label, encodeVector(ex.Vector), now); err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
				return fmt.Errorf("%w: %s", models.ErrDuplicateExample, ex.Key())
			}
			return err
		}
	}
	return tx.Commit()
}

// Delete removes the example with the given key.
func (s *SQLiteDataset) Delete(ctx context.Context, key models.Key) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM examples WHERE text = ? AND label = ?`, key.Text, key.Label)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", models.ErrNotFound, key)
	}
	return nil
}

// Clear removes every example.
func (s *SQLiteDataset) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM examples`)
	return err
}

// Count returns the number of stored examples.
func (s *SQLiteDataset) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM examples`).Scan(&count)
	return count, err
}

// Path returns the database file path.
func (s *SQLiteDataset) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteDataset) Close() error {
	return s.db.Close()
}
