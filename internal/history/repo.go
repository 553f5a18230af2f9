// Package history keeps the durable record of completed generations and the
// user's favorite prompts. It is the Postgres replacement for the desktop
// app's history.json and favorites.json files.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fluxbatch/internal/domain"
	"fluxbatch/internal/infra"
	"fluxbatch/internal/sqlinline"
)

// Entry is one recorded generation.
type Entry struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	JobID      string    `json:"job_id"`
	Prompt     string    `json:"prompt"`
	ParamsJSON []byte    `json:"params"`
	StorageKey string    `json:"storage_key"`
	Format     string    `json:"format"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CreatedAt  time.Time `json:"created_at"`
}

// Favorite is a saved prompt.
type Favorite struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// Repo provides history and favorites persistence over the SQL runner.
type Repo struct {
	sql infra.SQLExecutor
}

func NewRepo(sql infra.SQLExecutor) *Repo {
	return &Repo{sql: sql}
}

// Insert records one completed generation.
func (r *Repo) Insert(ctx context.Context, entry Entry) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertGeneration,
		entry.RunID,
		entry.JobID,
		entry.Prompt,
		entry.ParamsJSON,
		entry.StorageKey,
		entry.Format,
		entry.Width,
		entry.Height,
		entry.CreatedAt,
	)
	return err
}

// List returns the most recent generations, newest first.
func (r *Repo) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListGenerations, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.JobID, &e.Prompt, &e.ParamsJSON, &e.StorageKey, &e.Format, &e.Width, &e.Height, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListByRun returns every recorded generation of one run in job order.
func (r *Repo) ListByRun(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListGenerationsByRun, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.JobID, &e.Prompt, &e.ParamsJSON, &e.StorageKey, &e.Format, &e.Width, &e.Height, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveFavorite stores a named prompt for later reuse.
func (r *Repo) SaveFavorite(ctx context.Context, name, prompt string) (Favorite, error) {
	name = strings.TrimSpace(name)
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Favorite{}, fmt.Errorf("%w: prompt is required", domain.ErrInvalidInput)
	}
	if name == "" {
		name = prompt
		if len(name) > 60 {
			name = name[:60]
		}
	}

	fav := Favorite{Name: name, Prompt: prompt}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertFavorite, name, prompt)
	if err := row.Scan(&fav.ID, &fav.CreatedAt); err != nil {
		return Favorite{}, err
	}
	return fav, nil
}

// ListFavorites returns all saved prompts, newest first.
func (r *Repo) ListFavorites(ctx context.Context) ([]Favorite, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListFavorites)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var favorites []Favorite
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.ID, &f.Name, &f.Prompt, &f.CreatedAt); err != nil {
			return nil, err
		}
		favorites = append(favorites, f)
	}
	return favorites, rows.Err()
}

// DeleteFavorite removes a saved prompt by id.
func (r *Repo) DeleteFavorite(ctx context.Context, id string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteFavorite, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: favorite %s", domain.ErrNotFound, id)
	}
	return nil
}
