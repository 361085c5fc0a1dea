package media

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	goerrors "github.com/goliatone/go-errors"

	"github.com/GyroZepelix/cornerstone/internal/entity"
	"github.com/GyroZepelix/cornerstone/internal/query"
	"github.com/GyroZepelix/cornerstone/internal/server"
)

// maxFormSize bounds the multipart body (10 MiB per file plus form overhead).
const maxFormSize = 11 << 20

// Handler provides HTTP handlers for the media library.
type Handler struct {
	service *Service
	abs     Absolutizer
}

// NewHandler creates a new media Handler. URLs in responses are made
// absolute against abs.Base, or the request origin when it is empty.
func NewHandler(service *Service, abs Absolutizer) *Handler {
	return &Handler{service: service, abs: abs}
}

// Upload handles POST /api/upload. Files are read from the "files" and
// "file" multipart fields; the response lists the created assets.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)

	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		server.Error(w, http.StatusBadRequest, "INVALID_UPLOAD",
			"failed to parse multipart form: file may be too large", nil)
		return
	}

	var headers []*multipart.FileHeader
	for _, field := range []string{"files", "file"} {
		headers = append(headers, r.MultipartForm.File[field]...)
	}
	if len(headers) == 0 {
		server.Error(w, http.StatusBadRequest, "MISSING_FILE",
			"missing 'files' field in multipart form", nil)
		return
	}

	abs := h.abs.ForRequest(r)
	out := make([]any, 0, len(headers))
	for _, fh := range headers {
		m, err := h.service.Upload(r.Context(), fh)
		if err != nil {
			server.WriteError(w, r, err)
			return
		}
		out = append(out, abs.Media(m.Asset()))
	}
	server.JSON(w, http.StatusCreated, out)
}

// List handles GET /api/upload/files.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := 1, entity.DefaultPageSize
	values := r.URL.Query()
	if raw := values.Get("page"); raw != "" {
		n, err := query.PositiveInt("page", raw)
		if err != nil {
			server.WriteError(w, r, invalidParams(err))
			return
		}
		page = n
	}
	if _, raw, ok := query.First(values, "pageSize", "limit"); ok {
		n, err := query.PositiveInt("pageSize", raw)
		if err != nil {
			server.WriteError(w, r, invalidParams(err))
			return
		}
		pageSize = min(n, entity.MaxPageSize)
	}

	items, total, err := h.service.List(r.Context(), page, pageSize)
	if err != nil {
		server.WriteError(w, r, err)
		return
	}

	abs := h.abs.ForRequest(r)
	out := make([]any, len(items))
	for i, m := range items {
		out[i] = abs.Media(m.Asset())
	}
	server.Envelope(w, http.StatusOK, out, map[string]any{
		"pagination": map[string]any{
			"page":      page,
			"pageSize":  pageSize,
			"pageCount": (total + pageSize - 1) / pageSize,
			"total":     total,
		},
	})
}

// Get handles GET /api/upload/files/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		server.Error(w, http.StatusBadRequest, "INVALID_ID", "id must be a positive integer", nil)
		return
	}

	m, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			server.Error(w, http.StatusNotFound, "NOT_FOUND", "media not found", nil)
			return
		}
		server.WriteError(w, r, err)
		return
	}
	server.JSON(w, http.StatusOK, h.abs.ForRequest(r).Media(m.Asset()))
}

// Serve handles GET /uploads/{filename}.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	filePath := h.service.storage.Path(filename)
	if filePath == "" {
		server.Error(w, http.StatusBadRequest, "INVALID_FILENAME", "invalid filename", nil)
		return
	}

	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() {
		if err == nil || os.IsNotExist(err) {
			server.Error(w, http.StatusNotFound, "NOT_FOUND", "media file not found", nil)
			return
		}
		server.WriteError(w, r, fmt.Errorf("stat media file: %w", err))
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	if !imageMIMETypes[stripParams(contentType)] {
		// Non-images are downloaded, never rendered inline.
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	http.ServeFile(w, r, filePath)
}

func invalidParams(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, err.Error()).WithTextCode("INVALID_PARAMS")
}
