package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/GyroZepelix/cornerstone/internal/database"
	"github.com/GyroZepelix/cornerstone/internal/schema"
)

// PostgresStore keeps entries in the entries table as JSONB attributes, with
// relations in entry_relations.
type PostgresStore struct {
	db      *database.DB
	schemas map[string]schema.ContentType
	media   MediaLookup
}

// NewPostgresStore creates a store over db for the given schemas.
func NewPostgresStore(db *database.DB, schemas []schema.ContentType, media MediaLookup) *PostgresStore {
	return &PostgresStore{db: db, schemas: schema.Index(schemas), media: media}
}

const entryColumns = "e.id, e.content_type, e.attributes, e.published_at, e.created_at, e.updated_at"

// FindMany runs a count query and a data query with the same WHERE clause.
func (s *PostgresStore) FindMany(ctx context.Context, contentType string, q Query) (Page, error) {
	ct, err := schemaFor(s.schemas, contentType)
	if err != nil {
		return Page{}, err
	}

	b := &sqlBuilder{schemas: s.schemas}
	where, err := b.where("e", ct, q)
	if err != nil {
		return Page{}, err
	}
	order, err := b.orderBy("e", ct, q.Sort)
	if err != nil {
		return Page{}, err
	}

	var total int
	countSQL := "SELECT COUNT(*) FROM entries e WHERE " + where
	if err := s.db.Pool().QueryRow(ctx, countSQL, b.args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("counting %s entries: %w", contentType, err)
	}

	offset, limit := q.Pagination.bounds()
	args := append(b.args, limit, offset)
	dataSQL := fmt.Sprintf("SELECT %s FROM entries e WHERE %s %s LIMIT $%d OFFSET $%d",
		entryColumns, where, order, len(args)-1, len(args))

	rows, err := s.db.Pool().Query(ctx, dataSQL, args...)
	if err != nil {
		return Page{}, fmt.Errorf("querying %s entries: %w", contentType, err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return Page{}, fmt.Errorf("scanning %s entries: %w", contentType, err)
	}

	entries, err := s.render(ctx, ct, recs, q)
	if err != nil {
		return Page{}, err
	}
	return Page{Results: entries, Pagination: newPageInfo(q.Pagination, total)}, nil
}

// FindOne returns a single entry by id.
func (s *PostgresStore) FindOne(ctx context.Context, contentType string, id int64, q Query) (Entry, error) {
	ct, err := schemaFor(s.schemas, contentType)
	if err != nil {
		return nil, err
	}

	b := &sqlBuilder{schemas: s.schemas}
	where, err := b.where("e", ct, Query{PublicationState: q.PublicationState})
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM entries e WHERE %s AND e.id = %s", entryColumns, where, b.arg(id))

	rows, err := s.db.Pool().Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s entry: %w", contentType, err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning %s entry: %w", contentType, err)
	}

	entries, err := s.render(ctx, ct, []*record{rec}, q)
	if err != nil {
		return nil, err
	}
	return entries[0], nil
}

// Create inserts the entry and its relations in one transaction.
func (s *PostgresStore) Create(ctx context.Context, contentType string, data map[string]any) (Entry, error) {
	ct, err := schemaFor(s.schemas, contentType)
	if err != nil {
		return nil, err
	}
	w, err := splitWrite(ct, data)
	if err != nil {
		return nil, err
	}
	attrs, err := json.Marshal(w.attrs)
	if err != nil {
		return nil, fmt.Errorf("marshaling attributes: %w", err)
	}

	var publishedAt *time.Time
	if w.publish == nil || *w.publish {
		publishedAt = publishTime(w, time.Now().UTC())
	}

	var rec *record
	err = s.db.InTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`INSERT INTO entries AS e (content_type, attributes, published_at)
			 VALUES ($1, $2, $3)
			 RETURNING `+entryColumns,
			contentType, attrs, publishedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting %s entry: %w", contentType, err)
		}
		rec, err = pgx.CollectExactlyOneRow(rows, scanRecord)
		if err != nil {
			return fmt.Errorf("scanning inserted %s entry: %w", contentType, err)
		}
		return s.writeRelations(ctx, tx, ct, rec.ID, w.relations)
	})
	if err != nil {
		return nil, err
	}
	return rec.entry(ct, nil), nil
}

// Update merges attributes with jsonb concatenation and replaces any
// relations present in data.
func (s *PostgresStore) Update(ctx context.Context, contentType string, id int64, data map[string]any) (Entry, error) {
	ct, err := schemaFor(s.schemas, contentType)
	if err != nil {
		return nil, err
	}
	w, err := splitWrite(ct, data)
	if err != nil {
		return nil, err
	}
	attrs, err := json.Marshal(w.attrs)
	if err != nil {
		return nil, fmt.Errorf("marshaling attributes: %w", err)
	}

	publishSQL := "e.published_at"
	args := []any{contentType, id, attrs}
	if w.publish != nil {
		publishSQL = "$4"
		if *w.publish {
			args = append(args, publishTime(w, time.Now().UTC()))
		} else {
			args = append(args, nil)
		}
	}

	var rec *record
	err = s.db.InTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`UPDATE entries AS e
			 SET attributes = e.attributes || $3::jsonb,
			     published_at = `+publishSQL+`,
			     updated_at = now()
			 WHERE e.content_type = $1 AND e.id = $2
			 RETURNING `+entryColumns,
			args...,
		)
		if err != nil {
			return fmt.Errorf("updating %s entry: %w", contentType, err)
		}
		rec, err = pgx.CollectExactlyOneRow(rows, scanRecord)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("scanning updated %s entry: %w", contentType, err)
		}
		return s.writeRelations(ctx, tx, ct, id, w.relations)
	})
	if err != nil {
		return nil, err
	}
	return rec.entry(ct, nil), nil
}

// writeRelations replaces the stored targets of each relation field present
// in relations. Targets must exist and belong to the related content type.
func (s *PostgresStore) writeRelations(ctx context.Context, tx pgx.Tx, ct schema.ContentType, id int64, relations map[string][]int64) error {
	for name, ids := range relations {
		f, _ := ct.Field(name)

		if len(ids) > 0 {
			var found int
			if err := tx.QueryRow(ctx,
				`SELECT COUNT(DISTINCT id) FROM entries WHERE content_type = $1 AND id = ANY($2)`,
				f.RelatesTo, ids,
			).Scan(&found); err != nil {
				return fmt.Errorf("checking %s targets: %w", name, err)
			}
			if found != len(uniqueIDs(ids)) {
				return invalidQuery("%s.%s references missing %s entries", ct.Name, name, f.RelatesTo)
			}
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM entry_relations WHERE entry_id = $1 AND field = $2`, id, name,
		); err != nil {
			return fmt.Errorf("clearing relation %s: %w", name, err)
		}

		batch := &pgx.Batch{}
		for pos, target := range uniqueIDs(ids) {
			batch.Queue(
				`INSERT INTO entry_relations (entry_id, field, target_id, position) VALUES ($1, $2, $3, $4)`,
				id, name, target, pos,
			)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("writing relation %s: %w", name, err)
			}
		}
	}
	return nil
}

func (s *PostgresStore) render(ctx context.Context, ct schema.ContentType, recs []*record, q Query) ([]Entry, error) {
	entries := make([]Entry, len(recs))
	for i, rec := range recs {
		entries[i] = rec.entry(ct, q.Fields)
	}
	p := &populator{schemas: s.schemas, media: s.media, relations: s.loadRelations}
	if err := p.apply(ctx, ct, recs, entries, q.Populate); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *PostgresStore) loadRelations(ctx context.Context, sourceIDs []int64, field string) (map[int64][]*record, error) {
	rows, err := s.db.Pool().Query(ctx,
		`SELECT r.entry_id, `+entryColumns+`
		 FROM entry_relations r
		 JOIN entries e ON e.id = r.target_id
		 WHERE r.entry_id = ANY($1) AND r.field = $2
		 ORDER BY r.entry_id, r.position`,
		sourceIDs, field,
	)
	if err != nil {
		return nil, err
	}

	type related struct {
		source int64
		rec    *record
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (related, error) {
		var r related
		rec, err := scanRecordWith(row, &r.source)
		r.rec = rec
		return r, err
	})
	if err != nil {
		return nil, err
	}

	out := make(map[int64][]*record, len(sourceIDs))
	for _, r := range list {
		out[r.source] = append(out[r.source], r.rec)
	}
	return out, nil
}

func scanRecord(row pgx.CollectableRow) (*record, error) {
	return scanRecordWith(row)
}

// scanRecordWith scans optional leading columns into lead followed by the
// entryColumns.
func scanRecordWith(row pgx.CollectableRow, lead ...any) (*record, error) {
	var rec record
	var attrs []byte
	dest := append(lead, &rec.ID, &rec.ContentType, &attrs, &rec.PublishedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	rec.Attrs = map[string]any{}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &rec.Attrs); err != nil {
			return nil, fmt.Errorf("unmarshaling attributes of entry %d: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
