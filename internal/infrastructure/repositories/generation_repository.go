package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
	"github.com/avatarctic/satcrack-offline/internal/core/ports"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/db"
)

// GenerationRepository implements ports.GenerationStore on PostgreSQL.
type GenerationRepository struct {
	db *db.Database
}

// NewGenerationRepository creates a new generation repository
func NewGenerationRepository(database *db.Database) ports.GenerationStore {
	return &GenerationRepository{db: database}
}

type cachedResponseRow struct {
	Status   int       `db:"status"`
	Header   []byte    `db:"header"`
	Body     []byte    `db:"body"`
	StoredAt time.Time `db:"stored_at"`
}

// Open creates the generation if it does not exist yet
func (r *GenerationRepository) Open(ctx context.Context, name string) error {
	query := `INSERT INTO cache_generations (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`
	if _, err := r.db.DB.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("failed to open cache generation: %w", err)
	}
	return nil
}

// Names lists every generation
func (r *GenerationRepository) Names(ctx context.Context) ([]string, error) {
	var names []string
	query := `SELECT name FROM cache_generations ORDER BY created_at, name`
	if err := r.db.DB.SelectContext(ctx, &names, query); err != nil {
		return nil, fmt.Errorf("failed to list cache generations: %w", err)
	}
	return names, nil
}

// Delete drops a generation; its responses go with it (ON DELETE CASCADE)
func (r *GenerationRepository) Delete(ctx context.Context, name string) (bool, error) {
	res, err := r.db.DB.ExecContext(ctx, `DELETE FROM cache_generations WHERE name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete cache generation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete cache generation: %w", err)
	}
	return n > 0, nil
}

// Match returns the stored response for key
func (r *GenerationRepository) Match(ctx context.Context, name, key string) (*offline.CachedResponse, bool, error) {
	var row cachedResponseRow
	query := `
		SELECT status, header, body, stored_at
		FROM cached_responses
		WHERE generation = $1 AND request_key = $2`

	err := r.db.DB.GetContext(ctx, &row, query, name, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to match cached response: %w", err)
	}
	resp := &offline.CachedResponse{Status: row.Status, Body: row.Body, StoredAt: row.StoredAt, Header: http.Header{}}
	if len(row.Header) > 0 {
		if err := json.Unmarshal(row.Header, &resp.Header); err != nil {
			return nil, false, fmt.Errorf("failed to decode cached response header: %w", err)
		}
	}
	return resp, true, nil
}

// Put upserts the response under key, creating the generation when needed
func (r *GenerationRepository) Put(ctx context.Context, name, key string, resp *offline.CachedResponse) error {
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return fmt.Errorf("failed to encode response header: %w", err)
	}
	tx, err := r.db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO cache_generations (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return fmt.Errorf("failed to open cache generation: %w", err)
	}
	query := `
		INSERT INTO cached_responses (generation, request_key, status, header, body, stored_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (generation, request_key)
		DO UPDATE SET status = EXCLUDED.status, header = EXCLUDED.header, body = EXCLUDED.body, stored_at = EXCLUDED.stored_at`
	if _, err := tx.ExecContext(ctx, query, name, key, resp.Status, header, resp.Body, resp.StoredAt); err != nil {
		return fmt.Errorf("failed to store cached response: %w", err)
	}
	return tx.Commit()
}
