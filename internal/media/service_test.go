package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/rs/zerolog"

	"github.com/GyroZepelix/cornerstone/internal/audit"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Log(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.NRGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

// fileHeader builds a multipart.FileHeader the way the HTTP server would.
func fileHeader(t *testing.T, filename, contentType string, data []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="files"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	part.Write(data)
	mw.Close()

	form, err := multipart.NewReader(&body, mw.Boundary()).ReadForm(32 << 20)
	if err != nil {
		t.Fatalf("ReadForm() error = %v", err)
	}
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["files"][0]
}

func newTestService(t *testing.T) (*Service, *recordingAudit) {
	t.Helper()
	storage, _ := newTestStorage(t)
	rec := &recordingAudit{}
	return NewService(NewMemoryRepository(), storage, rec, zerolog.Nop()), rec
}

func TestUpload_ImageWithFormats(t *testing.T) {
	svc, rec := newTestService(t)

	m, err := svc.Upload(context.Background(), fileHeader(t, "hero.png", "image/png", pngBytes(t, 1200, 800)))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if m.ID != 1 || m.Name != "hero.png" || m.Mime != "image/png" {
		t.Errorf("unexpected record %+v", m)
	}
	if !strings.HasPrefix(m.URL, URLPrefix+"/") || !strings.HasSuffix(m.URL, ".png") {
		t.Errorf("unexpected url %q", m.URL)
	}
	if m.Width == nil || *m.Width != 1200 || m.Height == nil || *m.Height != 800 {
		t.Errorf("unexpected dimensions %v x %v", m.Width, m.Height)
	}

	wantWidths := map[string]int{"small": 500, "medium": 750, "large": 1000}
	for name, w := range wantWidths {
		f, ok := m.Formats[name]
		if !ok {
			t.Errorf("missing format %q", name)
			continue
		}
		if f.Width != w {
			t.Errorf("%s width = %d, want %d", name, f.Width, w)
		}
		if f.Mime != "image/png" {
			t.Errorf("%s mime = %q", name, f.Mime)
		}
	}
	thumb, ok := m.Formats["thumbnail"]
	if !ok {
		t.Fatal("missing thumbnail format")
	}
	if thumb.Width > 245 || thumb.Height > 156 {
		t.Errorf("thumbnail %dx%d exceeds 245x156", thumb.Width, thumb.Height)
	}

	for _, name := range m.files() {
		if _, err := os.Stat(svc.storage.Path(name)); err != nil {
			t.Errorf("stored file %q missing: %v", name, err)
		}
	}

	if len(rec.events) != 1 || rec.events[0].Action != "media.upload" || rec.events[0].EntryID != m.ID {
		t.Errorf("unexpected audit events %+v", rec.events)
	}
}

func TestUpload_SmallImageHasNoFormats(t *testing.T) {
	svc, _ := newTestService(t)

	m, err := svc.Upload(context.Background(), fileHeader(t, "icon.png", "image/png", pngBytes(t, 100, 100)))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(m.Formats) != 0 {
		t.Errorf("expected no formats, got %v", m.Formats)
	}
	if m.Asset()["formats"] != nil {
		t.Errorf("expected nil formats in asset, got %v", m.Asset()["formats"])
	}
}

func TestUpload_SniffsContentOverHeader(t *testing.T) {
	svc, _ := newTestService(t)

	// A PNG body labelled as JPEG is stored as PNG.
	m, err := svc.Upload(context.Background(), fileHeader(t, "photo.jpg", "image/jpeg", pngBytes(t, 10, 10)))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if m.Mime != "image/png" || !strings.HasSuffix(m.Filename, ".png") {
		t.Errorf("expected png, got %q %q", m.Mime, m.Filename)
	}
}

func TestUpload_CSVKeepsHeaderType(t *testing.T) {
	svc, _ := newTestService(t)

	m, err := svc.Upload(context.Background(), fileHeader(t, "data.csv", "text/csv", []byte("a,b\n1,2\n")))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if m.Mime != "text/csv" || !strings.HasSuffix(m.Filename, ".csv") {
		t.Errorf("expected text/csv, got %q %q", m.Mime, m.Filename)
	}
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		data        []byte
		category    goerrors.Category
	}{
		{"html", "text/html", []byte("<!DOCTYPE html><html><body>x</body></html>"), goerrors.CategoryValidation},
		{"empty", "text/plain", nil, goerrors.CategoryBadInput},
		{"too large", "text/plain", bytes.Repeat([]byte("a"), maxUploadSize+1), goerrors.CategoryValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, rec := newTestService(t)
			_, err := svc.Upload(context.Background(), fileHeader(t, "f", tc.contentType, tc.data))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !goerrors.IsCategory(err, tc.category) {
				t.Errorf("expected category %v, got %v", tc.category, err)
			}
			if len(rec.events) != 0 {
				t.Errorf("rejected upload was audited: %+v", rec.events)
			}
		})
	}
}

func TestLookupMedia(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	m, err := svc.Upload(ctx, fileHeader(t, "notes.txt", "text/plain", []byte("hello")))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	got, err := svc.LookupMedia(ctx, []int64{m.ID, 99})
	if err != nil {
		t.Fatalf("LookupMedia() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 asset, got %d", len(got))
	}
	asset := got[m.ID]
	if asset["url"] != m.URL || asset["name"] != "notes.txt" || asset["mime"] != "text/plain" {
		t.Errorf("unexpected asset %v", asset)
	}
	if _, ok := asset["filename"]; ok {
		t.Error("asset exposes the storage filename")
	}
}

func TestGetAndList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if _, err := svc.Upload(ctx, fileHeader(t, name, "text/plain", []byte(name))); err != nil {
			t.Fatalf("Upload(%s) error = %v", name, err)
		}
	}

	if _, err := svc.Get(ctx, 42); err != ErrNotFound {
		t.Errorf("Get(42) error = %v, want ErrNotFound", err)
	}
	m, err := svc.Get(ctx, 2)
	if err != nil || m.Name != "b.txt" {
		t.Errorf("Get(2) = %+v, %v", m, err)
	}

	items, total, err := svc.List(ctx, 1, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 || len(items) != 2 || items[0].Name != "c.txt" {
		t.Errorf("List(1, 2) = %d items, total %d, first %q", len(items), total, items[0].Name)
	}
	items, _, _ = svc.List(ctx, 2, 2)
	if len(items) != 1 || items[0].Name != "a.txt" {
		t.Errorf("List(2, 2) returned %d items", len(items))
	}
}

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		header string
		want   string
	}{
		{"png body", []byte("\x89PNG\r\n\x1a\n0000"), "image/jpeg", "image/png"},
		{"json header", []byte(`{"a":1}`), "application/json", "application/json"},
		{"header params stripped", []byte("a,b"), "text/csv; charset=utf-8", "text/csv"},
		{"html ignored header", []byte("<html><body></body></html>"), "text/plain", "text/html"},
		{"binary unknown header", []byte{0x00, 0x01, 0x02, 0x03}, "application/x-foo", "application/octet-stream"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := detectMIME(tc.data, tc.header); got != tc.want {
				t.Errorf("detectMIME() = %q, want %q", got, tc.want)
			}
		})
	}
}
