package controller

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/rs/zerolog"

	"github.com/GyroZepelix/cornerstone/internal/audit"
	"github.com/GyroZepelix/cornerstone/internal/entity"
	"github.com/GyroZepelix/cornerstone/internal/schema"
)

// Core is the default controller of a content type. It validates the
// query against the schema, calls the store and shapes the envelope.
type Core struct {
	ct       schema.ContentType
	store    entity.Store
	audit    audit.Logger
	log      zerolog.Logger
	sanitize sanitizer
}

// NewCore creates the default controller for ct. auditLog may be nil.
func NewCore(ct schema.ContentType, store entity.Store, auditLog audit.Logger, log zerolog.Logger) *Core {
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	return &Core{
		ct:       ct,
		store:    store,
		audit:    auditLog,
		log:      log.With().Str("content_type", ct.Name).Logger(),
		sanitize: newSanitizer(),
	}
}

// ContentType returns the schema the controller serves.
func (c *Core) ContentType() schema.ContentType {
	return c.ct
}

// Find lists entries. Single types return their one entry as an object,
// or null when it has not been created yet.
func (c *Core) Find(ctx context.Context, req *Request) (Response, error) {
	if err := c.checkQuery(req.Query); err != nil {
		return Response{}, err
	}

	if c.ct.IsSingle() {
		entry, err := c.single(ctx, req.Query)
		if err != nil {
			return Response{}, err
		}
		var data any
		if entry != nil {
			data = entry
		}
		return Response{Data: data, Meta: map[string]any{}}, nil
	}

	page, err := c.store.FindMany(ctx, c.ct.Name, req.Query)
	if err != nil {
		return Response{}, classify(err, "finding %s entries", c.ct.Name)
	}

	data := make([]any, len(page.Results))
	for i, e := range page.Results {
		data[i] = e
	}
	return Response{Data: data, Meta: map[string]any{"pagination": paginationMeta(page.Pagination)}}, nil
}

// FindOne returns the entry with req.ID.
func (c *Core) FindOne(ctx context.Context, req *Request) (Response, error) {
	if !req.HasID {
		return Response{}, badInput(CodeMissingID, "%s id is required", c.ct.Name)
	}
	if err := c.checkQuery(req.Query); err != nil {
		return Response{}, err
	}

	entry, err := c.store.FindOne(ctx, c.ct.Name, req.ID, req.Query)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return Response{}, notFound("%s %d not found", c.ct.Name, req.ID)
		}
		return Response{}, classify(err, "finding %s %d", c.ct.Name, req.ID)
	}
	return Response{Data: entry, Meta: map[string]any{}}, nil
}

// Create validates and stores a new entry. For single types an existing
// entry is updated instead.
func (c *Core) Create(ctx context.Context, req *Request) (Response, error) {
	if c.ct.IsSingle() {
		return c.Update(ctx, req)
	}
	if err := validatePayload(c.ct, req.Body, false); err != nil {
		return Response{}, err
	}

	entry, err := c.store.Create(ctx, c.ct.Name, c.sanitize.apply(c.ct, req.Body))
	if err != nil {
		return Response{}, writeError(err, "creating %s", c.ct.Name)
	}

	id, _ := entry["id"].(int64)
	c.log.Debug().Int64("id", id).Msg("entry created")
	c.audit.Log(ctx, audit.Event{Action: "entry.create", ContentType: c.ct.Name, EntryID: id})
	return Response{Data: entry, Meta: map[string]any{}}, nil
}

// Update merges req.Body into the entry with req.ID. Single types need no
// id; their entry is created on first update.
func (c *Core) Update(ctx context.Context, req *Request) (Response, error) {
	id, hasID := req.ID, req.HasID
	if !hasID && c.ct.IsSingle() {
		existing, err := c.single(ctx, entity.Query{PublicationState: entity.PublicationPreview})
		if err != nil {
			return Response{}, err
		}
		if existing == nil {
			return c.createSingle(ctx, req)
		}
		id, hasID = existing["id"].(int64)
	}
	if !hasID {
		return Response{}, badInput(CodeMissingID, "%s id is required", c.ct.Name)
	}

	if err := validatePayload(c.ct, req.Body, true); err != nil {
		return Response{}, err
	}

	entry, err := c.store.Update(ctx, c.ct.Name, id, c.sanitize.apply(c.ct, req.Body))
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return Response{}, notFound("%s %d not found", c.ct.Name, id)
		}
		return Response{}, writeError(err, "updating %s %d", c.ct.Name, id)
	}

	c.log.Debug().Int64("id", id).Msg("entry updated")
	c.audit.Log(ctx, audit.Event{Action: "entry.update", ContentType: c.ct.Name, EntryID: id})
	return Response{Data: entry, Meta: map[string]any{}}, nil
}

func (c *Core) createSingle(ctx context.Context, req *Request) (Response, error) {
	if err := validatePayload(c.ct, req.Body, false); err != nil {
		return Response{}, err
	}
	entry, err := c.store.Create(ctx, c.ct.Name, c.sanitize.apply(c.ct, req.Body))
	if err != nil {
		return Response{}, writeError(err, "creating %s", c.ct.Name)
	}
	id, _ := entry["id"].(int64)
	c.audit.Log(ctx, audit.Event{Action: "entry.create", ContentType: c.ct.Name, EntryID: id})
	return Response{Data: entry, Meta: map[string]any{}}, nil
}

// single returns the entry of a single type, or nil.
func (c *Core) single(ctx context.Context, q entity.Query) (entity.Entry, error) {
	q.Pagination = entity.Pagination{Page: 1, PageSize: 1}
	page, err := c.store.FindMany(ctx, c.ct.Name, q)
	if err != nil {
		return nil, classify(err, "finding %s", c.ct.Name)
	}
	if len(page.Results) == 0 {
		return nil, nil
	}
	return page.Results[0], nil
}

// checkQuery rejects sort and field selections the schema cannot serve.
func (c *Core) checkQuery(q entity.Query) error {
	for _, sf := range q.Sort {
		if !c.scalar(sf.Field, false) {
			return badInput(CodeInvalidParams, "cannot sort %s by %q", c.ct.Name, sf.Field)
		}
	}
	for _, name := range q.Fields {
		if !c.scalar(name, true) {
			return badInput(CodeInvalidParams, "%s has no selectable field %q", c.ct.Name, name)
		}
	}
	for _, name := range q.Populate {
		if name == "*" {
			continue
		}
		f, ok := c.ct.Field(name)
		if !ok {
			return badInput(CodeInvalidParams, "%s has no field %q to populate", c.ct.Name, name)
		}
		switch f.Type {
		case schema.FieldTypeMedia, schema.FieldTypeRelation, schema.FieldTypeComponent:
		default:
			return badInput(CodeInvalidParams, "%s.%s cannot be populated", c.ct.Name, name)
		}
	}
	return nil
}

// scalar reports whether name is a system attribute or a plain field.
// JSON fields can be selected but not sorted.
func (c *Core) scalar(name string, allowJSON bool) bool {
	if schema.SystemAttributes[name] {
		return true
	}
	f, ok := c.ct.Field(name)
	if !ok {
		return false
	}
	switch f.Type {
	case schema.FieldTypeMedia, schema.FieldTypeRelation, schema.FieldTypeComponent:
		return false
	case schema.FieldTypeJSON:
		return allowJSON
	}
	return true
}

// writeError maps store write failures. Rejected payloads are client
// errors.
func writeError(err error, op string, args ...any) error {
	if errors.Is(err, entity.ErrInvalidQuery) {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, err.Error()).WithTextCode(CodeInvalidPayload)
	}
	return classify(err, op, args...)
}

// paginationMeta renders PageInfo in page or offset form.
func paginationMeta(p entity.PageInfo) map[string]any {
	if p.Offset {
		return map[string]any{"start": p.Start, "limit": p.Limit, "total": p.Total}
	}
	return map[string]any{
		"page":      p.Page,
		"pageSize":  p.PageSize,
		"pageCount": p.PageCount,
		"total":     p.Total,
	}
}
