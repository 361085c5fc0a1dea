package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/GyroZepelix/cornerstone/internal/media"
	"github.com/GyroZepelix/cornerstone/internal/server"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Handler exposes the registry over HTTP at /api/{route} and
// /api/{route}/{id}.
type Handler struct {
	registry *Registry
}

// NewHandler creates a new Handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

type call func(c Controller, r *http.Request, req *Request) (Response, error)

// prepare resolves the route, parses the query and path id. It writes the
// error response itself and returns false on failure.
func (h *Handler) prepare(w http.ResponseWriter, r *http.Request) (Controller, *Request, bool) {
	route := chi.URLParam(r, "route")
	c, name, ok := h.registry.ByRoute(route)
	if !ok {
		server.Error(w, http.StatusNotFound, "NOT_FOUND", "unknown content type '"+route+"'", nil)
		return nil, nil, false
	}

	req, err := NewRequest(r.URL.Query())
	if err != nil {
		server.WriteError(w, r, err)
		return nil, nil, false
	}
	req.Origin = media.RequestOrigin(r, h.registry.trustProxy)

	if raw := chi.URLParam(r, "id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			server.WriteError(w, r, badInput(CodeInvalidID, "invalid %s id %q", name, raw))
			return nil, nil, false
		}
		req.ID, req.HasID = id, true
	}

	zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("content_type", name)
	})
	return c, req, true
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, status int, withBody bool, fn call) {
	c, req, ok := h.prepare(w, r)
	if !ok {
		return
	}
	if withBody {
		body, err := decodeBody(w, r)
		if err != nil {
			server.WriteError(w, r, err)
			return
		}
		req.Body = body
	}

	resp, err := fn(c, r, req)
	if err != nil {
		server.WriteError(w, r, err)
		return
	}
	server.Envelope(w, status, resp.Data, resp.Meta)
}

// Find handles GET /api/{route}.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, false, func(c Controller, r *http.Request, req *Request) (Response, error) {
		return c.Find(r.Context(), req)
	})
}

// FindOne handles GET /api/{route}/{id}.
func (h *Handler) FindOne(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, false, func(c Controller, r *http.Request, req *Request) (Response, error) {
		return c.FindOne(r.Context(), req)
	})
}

// Create handles POST /api/{route}.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusCreated, true, func(c Controller, r *http.Request, req *Request) (Response, error) {
		return c.Create(r.Context(), req)
	})
}

// Update handles PUT /api/{route}/{id}, and PUT /api/{route} for single
// types.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, true, func(c Controller, r *http.Request, req *Request) (Response, error) {
		return c.Update(r.Context(), req)
	})
}

// decodeBody reads a {"data": {...}} request body.
func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var envelope map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&envelope); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, badInput(CodeInvalidBody, "request body exceeds %d bytes", maxBodySize)
		}
		return nil, badInput(CodeInvalidBody, "invalid JSON body")
	}

	data, ok := envelope["data"].(map[string]any)
	if !ok {
		return nil, badInput(CodeInvalidBody, "request body must be an object with a \"data\" object")
	}

	// Convert json.Number values to native Go types for downstream processing.
	convertNumbers(data)
	return data, nil
}

// convertNumbers walks a map and converts json.Number values to int64 or
// float64, descending into nested objects and lists.
func convertNumbers(data map[string]any) {
	for key, val := range data {
		data[key] = convertNumber(val)
	}
}

func convertNumber(val any) any {
	switch v := val.(type) {
	case json.Number:
		// Try int first (keep as int64), then float.
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
	case map[string]any:
		convertNumbers(v)
	case []any:
		for i := range v {
			v[i] = convertNumber(v[i])
		}
	}
	return val
}
