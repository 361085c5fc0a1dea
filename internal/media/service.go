package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	// Register standard image decoders so image.Decode recognizes them.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/GyroZepelix/cornerstone/internal/audit"
)

const (
	// maxUploadSize is the maximum allowed upload file size (10 MiB).
	maxUploadSize = 10 << 20

	// URLPrefix is the path under which stored files are served.
	URLPrefix = "/uploads"
)

// allowedMIMETypes is the set of MIME types accepted for upload.
var allowedMIMETypes = map[string]bool{
	"image/jpeg":       true,
	"image/png":        true,
	"image/gif":        true,
	"image/webp":       true,
	"application/pdf":  true,
	"text/plain":       true,
	"text/csv":         true,
	"application/json": true,
}

// imageMIMETypes is the subset of allowed types that get format variants.
var imageMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// mimeToExtension maps validated MIME types to canonical file extensions.
// Extensions come from the MIME type, never from the uploaded file name.
var mimeToExtension = map[string]string{
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
	"application/pdf":  ".pdf",
	"text/plain":       ".txt",
	"text/csv":         ".csv",
	"application/json": ".json",
}

// imageFormat is a resizing target. Thumbnails fit inside a box; the other
// formats are bounded by width only.
type imageFormat struct {
	Name      string
	MaxWidth  int
	MaxHeight int
}

var imageFormats = []imageFormat{
	{Name: "thumbnail", MaxWidth: 245, MaxHeight: 156},
	{Name: "small", MaxWidth: 500},
	{Name: "medium", MaxWidth: 750},
	{Name: "large", MaxWidth: 1000},
}

// Store persists media records.
type Store interface {
	Create(ctx context.Context, m *Media) error
	FindByIDs(ctx context.Context, ids []int64) ([]*Media, error)
	List(ctx context.Context, offset, limit int) ([]*Media, int, error)
}

// Service implements upload, lookup and listing of media assets.
type Service struct {
	store   Store
	storage *LocalStorage
	audit   audit.Logger
	log     zerolog.Logger
}

// NewService creates a new media Service. auditLog may be nil.
func NewService(store Store, storage *LocalStorage, auditLog audit.Logger, log zerolog.Logger) *Service {
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	return &Service{
		store:   store,
		storage: storage,
		audit:   auditLog,
		log:     log.With().Str("component", "media").Logger(),
	}
}

// upload is the validated shape of an incoming file.
type upload struct {
	Size int64  `json:"size"`
	MIME string `json:"mime"`
}

// Validate implements validation.Validatable.
func (u upload) Validate() error {
	allowed := make([]any, 0, len(allowedMIMETypes))
	for m := range allowedMIMETypes {
		allowed = append(allowed, m)
	}
	return validation.ValidateStruct(&u,
		validation.Field(&u.Size,
			validation.Max(int64(maxUploadSize)).Error(fmt.Sprintf("must not exceed %d bytes", maxUploadSize))),
		validation.Field(&u.MIME,
			validation.In(allowed...).Error(fmt.Sprintf("type %q is not allowed", u.MIME))),
	)
}

func uploadError(err error) error {
	return goerrors.FromOzzoValidation(err, "invalid upload").WithTextCode("UPLOAD_ERROR")
}

// Upload validates a multipart file, stores the original and its image
// formats, and records it.
func (s *Service) Upload(ctx context.Context, fh *multipart.FileHeader) (*Media, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening uploaded file: %w", err)
	}
	defer file.Close()

	// Read at most one byte past the limit so oversized bodies are caught.
	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading uploaded file: %w", err)
	}
	if len(data) == 0 {
		return nil, goerrors.New("uploaded file is empty", goerrors.CategoryBadInput).WithTextCode("UPLOAD_ERROR")
	}

	mimeType := detectMIME(data, fh.Header.Get("Content-Type"))
	if err := (upload{Size: int64(len(data)), MIME: mimeType}).Validate(); err != nil {
		return nil, uploadError(err)
	}

	base := uuid.NewString()
	filename := base + extensionFromMIME(mimeType)
	if err := s.storage.Save(filename, data); err != nil {
		return nil, fmt.Errorf("saving original file: %w", err)
	}

	m := &Media{
		Name:     fh.Filename,
		Filename: filename,
		URL:      URLPrefix + "/" + filename,
		Mime:     mimeType,
		Size:     int64(len(data)),
		Formats:  map[string]Format{},
	}
	if imageMIMETypes[mimeType] {
		s.processFormats(m, base, data, mimeType)
	}

	if err := s.store.Create(ctx, m); err != nil {
		s.cleanupFiles(m)
		return nil, fmt.Errorf("creating media record: %w", err)
	}

	s.audit.Log(ctx, audit.Event{
		Action:      "media.upload",
		ContentType: "media",
		EntryID:     m.ID,
		Payload:     map[string]any{"name": m.Name, "mime": m.Mime, "size": m.Size},
	})
	return m, nil
}

// detectMIME sniffs the content type. The client header is trusted only
// when sniffing is inconclusive, or when both agree on an allowed type and
// the header is more specific (text/csv over text/plain).
func detectMIME(data []byte, header string) string {
	detected := stripParams(http.DetectContentType(data[:min(512, len(data))]))
	header = stripParams(header)

	if detected == "application/octet-stream" {
		if allowedMIMETypes[header] {
			return header
		}
		return detected
	}
	if allowedMIMETypes[detected] && allowedMIMETypes[header] && !imageMIMETypes[detected] && !imageMIMETypes[header] {
		return header
	}
	return detected
}

func stripParams(mimeType string) string {
	if idx := strings.IndexByte(mimeType, ';'); idx != -1 {
		mimeType = mimeType[:idx]
	}
	return strings.TrimSpace(mimeType)
}

// processFormats decodes the image, records its dimensions and writes each
// format smaller than the original. Failures are logged and skipped; a
// malformed image never fails the upload.
func (s *Service) processFormats(m *Media, base string, data []byte, mimeType string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("filename", m.Filename).Interface("panic", r).Msg("panic during image format processing")
		}
	}()

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.log.Warn().Err(err).Str("filename", m.Filename).Msg("failed to decode image for format generation")
		return
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	m.Width = &width
	m.Height = &height

	encodeAs := formatFromMIME(mimeType)
	ext := variantExtension(mimeType)
	formatMIME := mimeFromExtension(ext)

	for _, f := range imageFormats {
		var resized *image.NRGBA
		switch {
		case f.MaxHeight > 0:
			if width <= f.MaxWidth && height <= f.MaxHeight {
				continue
			}
			resized = imaging.Fit(img, f.MaxWidth, f.MaxHeight, imaging.Lanczos)
		default:
			if width <= f.MaxWidth {
				continue
			}
			resized = imaging.Resize(img, f.MaxWidth, 0, imaging.Lanczos)
		}

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, resized, encodeAs); err != nil {
			s.log.Warn().Err(err).Str("format", f.Name).Str("filename", m.Filename).Msg("failed to encode image format")
			continue
		}

		name := f.Name + "_" + base + ext
		if err := s.storage.Save(name, buf.Bytes()); err != nil {
			s.log.Warn().Err(err).Str("format", f.Name).Str("filename", m.Filename).Msg("failed to save image format")
			continue
		}

		rb := resized.Bounds()
		m.Formats[f.Name] = Format{
			URL:    URLPrefix + "/" + name,
			Mime:   formatMIME,
			Width:  rb.Dx(),
			Height: rb.Dy(),
			Size:   int64(buf.Len()),
		}
	}
}

// cleanupFiles removes the original and every format from storage.
func (s *Service) cleanupFiles(m *Media) {
	for _, name := range m.files() {
		if err := s.storage.Delete(name); err != nil {
			s.log.Warn().Err(err).Str("filename", name).Msg("failed to clean up media file")
		}
	}
}

// LookupMedia resolves ids to asset maps for populated entry fields.
func (s *Service) LookupMedia(ctx context.Context, ids []int64) (map[int64]map[string]any, error) {
	items, err := s.store.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]map[string]any, len(items))
	for _, m := range items {
		out[m.ID] = m.Asset()
	}
	return out, nil
}

// Get returns a single record.
func (s *Service) Get(ctx context.Context, id int64) (*Media, error) {
	items, err := s.store.FindByIDs(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

// List returns a page of records, newest first, and the total count.
func (s *Service) List(ctx context.Context, page, pageSize int) ([]*Media, int, error) {
	return s.store.List(ctx, (page-1)*pageSize, pageSize)
}

// formatFromMIME returns the imaging format used to encode variants. The
// imaging library cannot encode WebP, so WebP variants are PNG.
func formatFromMIME(mimeType string) imaging.Format {
	switch mimeType {
	case "image/jpeg":
		return imaging.JPEG
	case "image/png", "image/webp":
		return imaging.PNG
	case "image/gif":
		return imaging.GIF
	default:
		return imaging.JPEG
	}
}

// variantExtension returns the file extension of variant files.
func variantExtension(mimeType string) string {
	switch mimeType {
	case "image/png", "image/webp":
		return ".png"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

func mimeFromExtension(ext string) string {
	for m, e := range mimeToExtension {
		if e == ext {
			return m
		}
	}
	return "application/octet-stream"
}

// extensionFromMIME returns a file extension for a given MIME type.
func extensionFromMIME(mimeType string) string {
	if ext, ok := mimeToExtension[mimeType]; ok {
		return ext
	}
	return ".bin"
}

// AllowedMIMEType reports whether the given MIME type is in the allowlist.
func AllowedMIMEType(mimeType string) bool {
	return allowedMIMETypes[mimeType]
}

// IsImageMIME reports whether the given MIME type gets format variants.
func IsImageMIME(mimeType string) bool {
	return imageMIMETypes[mimeType]
}
