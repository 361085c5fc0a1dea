// Package media provides the media library: upload with format variants,
// local file storage and serving, asset lookup for populated entry fields,
// and absolutization of asset URLs.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/GyroZepelix/cornerstone/internal/database"
)

// ErrNotFound is returned when a media record does not exist.
var ErrNotFound = errors.New("media not found")

// Format is a resized variant of an image asset.
type Format struct {
	URL    string `json:"url"`
	Mime   string `json:"mime"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int64  `json:"size"`
}

// Media is a stored asset. URLs are relative (/uploads/<file>); they are
// made absolute at response time.
type Media struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	Filename  string            `json:"-"`
	URL       string            `json:"url"`
	Mime      string            `json:"mime"`
	Size      int64             `json:"size"`
	Width     *int              `json:"width"`
	Height    *int              `json:"height"`
	Formats   map[string]Format `json:"formats"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Asset renders the record as the map form embedded in entries.
func (m *Media) Asset() map[string]any {
	a := map[string]any{
		"id":        m.ID,
		"name":      m.Name,
		"url":       m.URL,
		"mime":      m.Mime,
		"size":      m.Size,
		"width":     nil,
		"height":    nil,
		"formats":   nil,
		"createdAt": m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if m.Width != nil {
		a["width"] = *m.Width
	}
	if m.Height != nil {
		a["height"] = *m.Height
	}
	if len(m.Formats) > 0 {
		formats := make(map[string]any, len(m.Formats))
		for name, f := range m.Formats {
			formats[name] = map[string]any{
				"url":    f.URL,
				"mime":   f.Mime,
				"width":  f.Width,
				"height": f.Height,
				"size":   f.Size,
			}
		}
		a["formats"] = formats
	}
	return a
}

// files lists the stored file names of the original and every format.
func (m *Media) files() []string {
	out := []string{m.Filename}
	for _, f := range m.Formats {
		out = append(out, path.Base(f.URL))
	}
	return out
}

// Repository stores media records in PostgreSQL.
type Repository struct {
	db *database.DB
}

// NewRepository creates a new media Repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

const mediaColumns = `id, name, filename, url, mime, size, width, height, formats, created_at`

// Create inserts a new media record and fills in ID and CreatedAt.
func (r *Repository) Create(ctx context.Context, m *Media) error {
	formatsJSON, err := json.Marshal(m.Formats)
	if err != nil {
		return fmt.Errorf("marshaling formats: %w", err)
	}

	err = r.db.Pool().QueryRow(ctx, `
		INSERT INTO media (name, filename, url, mime, size, width, height, formats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		m.Name, m.Filename, m.URL, m.Mime, m.Size, m.Width, m.Height, formatsJSON,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting media record: %w", err)
	}
	return nil
}

// FindByIDs returns the records with the given ids. Missing ids are skipped.
func (r *Repository) FindByIDs(ctx context.Context, ids []int64) ([]*Media, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Pool().Query(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("querying media by ids: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanMedia)
	if err != nil {
		return nil, fmt.Errorf("scanning media rows: %w", err)
	}
	return items, nil
}

// List returns a window of records, newest first, and the total count.
func (r *Repository) List(ctx context.Context, offset, limit int) ([]*Media, int, error) {
	var total int
	if err := r.db.Pool().QueryRow(ctx, `SELECT count(*) FROM media`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting media: %w", err)
	}
	if total == 0 {
		return []*Media{}, 0, nil
	}

	rows, err := r.db.Pool().Query(ctx,
		`SELECT `+mediaColumns+` FROM media ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing media: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanMedia)
	if err != nil {
		return nil, 0, fmt.Errorf("scanning media rows: %w", err)
	}
	return items, total, nil
}

func scanMedia(row pgx.CollectableRow) (*Media, error) {
	m := &Media{}
	var formatsJSON []byte
	if err := row.Scan(&m.ID, &m.Name, &m.Filename, &m.URL, &m.Mime, &m.Size,
		&m.Width, &m.Height, &formatsJSON, &m.CreatedAt); err != nil {
		return nil, err
	}
	if len(formatsJSON) > 0 {
		if err := json.Unmarshal(formatsJSON, &m.Formats); err != nil {
			return nil, fmt.Errorf("unmarshaling formats: %w", err)
		}
	}
	return m, nil
}
