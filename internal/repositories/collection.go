package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/shared"
)

// CollectionRepository stores saved albums and playlists.
type CollectionRepository struct {
	db *sql.DB
}

// NewCollectionRepository creates a new CollectionRepository with the given database connection
func NewCollectionRepository(db *sql.DB) *CollectionRepository {
	return &CollectionRepository{db: db}
}

// Save inserts or updates a collection keyed by kind and id.
//
// An empty title or cover never overwrites a stored value.
func (r *CollectionRepository) Save(c models.SavedCollection) error {
	if c.Kind != models.ContextAlbum && c.Kind != models.ContextPlaylist {
		return fmt.Errorf("%w: collection kind %q", shared.ErrInvalidInput, c.Kind)
	}
	if c.ID <= 0 {
		return fmt.Errorf("%w: collection id %d", shared.ErrInvalidInput, c.ID)
	}

	now := time.Now()
	query := `
		INSERT INTO saved_collections (id, kind, collection_id, title, cover_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, collection_id) DO UPDATE SET
			title = CASE WHEN excluded.title = '' THEN saved_collections.title ELSE excluded.title END,
			cover_url = CASE WHEN excluded.cover_url = '' THEN saved_collections.cover_url ELSE excluded.cover_url END,
			updated_at = excluded.updated_at
	`

	if _, err := r.db.Exec(query, shared.GenerateID(), string(c.Kind), c.ID, c.Title, c.CoverURL, now, now); err != nil {
		return fmt.Errorf("failed to save collection: %w", err)
	}
	return nil
}

// Get returns the saved collection or an error wrapping [shared.ErrTrackNotFound] when absent.
func (r *CollectionRepository) Get(kind models.ContextType, id int64) (*models.SavedCollection, error) {
	query := `
		SELECT kind, collection_id, title, cover_url, updated_at
		FROM saved_collections
		WHERE kind = ? AND collection_id = ?
	`

	c, err := r.scan(r.db.QueryRow(query, string(kind), id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s %d", shared.ErrTrackNotFound, kind, id)
	}
	return c, err
}

// Delete removes a saved collection.
func (r *CollectionRepository) Delete(kind models.ContextType, id int64) error {
	if _, err := r.db.Exec(`DELETE FROM saved_collections WHERE kind = ? AND collection_id = ?`, string(kind), id); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// List returns saved collections, optionally filtered by kind, most recently updated first.
func (r *CollectionRepository) List(kind models.ContextType) ([]models.SavedCollection, error) {
	query := `SELECT kind, collection_id, title, cover_url, updated_at FROM saved_collections`
	args := []any{}
	if kind != models.ContextNone {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY updated_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collections: %w", err)
	}
	defer rows.Close()

	var out []models.SavedCollection
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func (r *CollectionRepository) scan(row scanner) (*models.SavedCollection, error) {
	var (
		c    models.SavedCollection
		kind string
	)
	if err := row.Scan(&kind, &c.ID, &c.Title, &c.CoverURL, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan collection: %w", err)
	}
	c.Kind = models.ContextType(kind)
	return &c, nil
}
