// Package contenttypes provides HTTP handlers for content type
// introspection, letting API clients discover the available content types,
// their routes, field definitions and entry counts.
package contenttypes

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/GyroZepelix/cornerstone/internal/entity"
	"github.com/GyroZepelix/cornerstone/internal/schema"
	"github.com/GyroZepelix/cornerstone/internal/server"
)

// FieldResponse represents a single field in the introspection response.
type FieldResponse struct {
	Name         string              `json:"name"`
	Type         schema.FieldType    `json:"type"`
	Required     bool                `json:"required"`
	MinLength    *int                `json:"min_length,omitempty"`
	MaxLength    *int                `json:"max_length,omitempty"`
	Min          *float64            `json:"min,omitempty"`
	Max          *float64            `json:"max,omitempty"`
	Regex        string              `json:"regex,omitempty"`
	Values       []string            `json:"values,omitempty"`
	RelatesTo    string              `json:"relates_to,omitempty"`
	RelationType schema.RelationType `json:"relation_type,omitempty"`
	Multiple     bool                `json:"multiple,omitempty"`
	Repeatable   bool                `json:"repeatable,omitempty"`
	Fields       []FieldResponse     `json:"fields,omitempty"`
}

// ContentTypeResponse represents a content type in the introspection
// response.
type ContentTypeResponse struct {
	Name            string          `json:"name"`
	DisplayName     string          `json:"display_name"`
	Route           string          `json:"route"`
	Kind            schema.Kind     `json:"kind"`
	DraftAndPublish bool            `json:"draft_and_publish"`
	Fields          []FieldResponse `json:"fields"`
	EntryCount      int             `json:"entry_count"`
}

// Handler provides HTTP handlers for content type introspection.
type Handler struct {
	store   entity.Store
	schemas []schema.ContentType
}

// NewHandler creates a new content types Handler. The schemas are copied
// and sorted by name for deterministic output.
func NewHandler(store entity.Store, schemas []schema.ContentType) *Handler {
	sorted := make([]schema.ContentType, len(schemas))
	copy(sorted, schemas)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})
	return &Handler{store: store, schemas: sorted}
}

func (h *Handler) lookup(name string) (schema.ContentType, bool) {
	for _, ct := range h.schemas {
		if ct.Name == name || ct.RoutePath() == name {
			return ct, true
		}
	}
	return schema.ContentType{}, false
}

// List handles GET /api/content-types.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	responses := make([]ContentTypeResponse, 0, len(h.schemas))
	for _, ct := range h.schemas {
		count, err := h.countEntries(r.Context(), ct.Name)
		if err != nil {
			// A missing count should not block the whole listing.
			log.Error().Err(err).Str("content_type", ct.Name).Msg("failed to count entries")
			count = 0
		}
		responses = append(responses, buildResponse(ct, count))
	}

	server.JSON(w, http.StatusOK, responses)
}

// Get handles GET /api/content-types/{name}. The name may also be the
// content type's route.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	ct, ok := h.lookup(name)
	if !ok {
		server.Error(w, http.StatusNotFound, "NOT_FOUND",
			fmt.Sprintf("content type '%s' not found", name), nil)
		return
	}

	count, err := h.countEntries(r.Context(), ct.Name)
	if err != nil {
		server.WriteError(w, r, err)
		return
	}

	server.JSON(w, http.StatusOK, buildResponse(ct, count))
}

// countEntries counts every entry of the type, drafts included.
func (h *Handler) countEntries(ctx context.Context, name string) (int, error) {
	page, err := h.store.FindMany(ctx, name, entity.Query{
		Pagination:       entity.Pagination{Page: 1, PageSize: 1},
		Fields:           []string{"id"},
		PublicationState: entity.PublicationPreview,
	})
	if err != nil {
		return 0, fmt.Errorf("counting entries for %s: %w", name, err)
	}
	return page.Pagination.Total, nil
}

// buildResponse converts a schema.ContentType and entry count into the API
// response type.
func buildResponse(ct schema.ContentType, entryCount int) ContentTypeResponse {
	kind := ct.Kind
	if kind == "" {
		kind = schema.KindCollection
	}
	return ContentTypeResponse{
		Name:            ct.Name,
		DisplayName:     ct.DisplayName,
		Route:           ct.RoutePath(),
		Kind:            kind,
		DraftAndPublish: ct.DraftAndPublish,
		Fields:          buildFields(ct.Fields),
		EntryCount:      entryCount,
	}
}

func buildFields(in []schema.Field) []FieldResponse {
	fields := make([]FieldResponse, len(in))
	for i, f := range in {
		fields[i] = FieldResponse{
			Name:         f.Name,
			Type:         f.Type,
			Required:     f.Required,
			MinLength:    f.MinLength,
			MaxLength:    f.MaxLength,
			Min:          f.Min,
			Max:          f.Max,
			Regex:        f.Regex,
			Values:       f.Values,
			RelatesTo:    f.RelatesTo,
			RelationType: f.RelationType,
			Multiple:     f.Multiple,
			Repeatable:   f.Repeatable,
		}
		if len(f.Fields) > 0 {
			fields[i].Fields = buildFields(f.Fields)
		}
	}
	return fields
}
