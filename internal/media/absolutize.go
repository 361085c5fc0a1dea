package media

import (
	"net/http"
	"regexp"
	"strings"
)

var absoluteURL = regexp.MustCompile(`(?i)^https?://`)

// AbsoluteURL prefixes a relative asset URL with base. Empty URLs and URLs
// that already carry an http or https scheme are returned unchanged.
func AbsoluteURL(base, url string) string {
	if url == "" || base == "" || absoluteURL.MatchString(url) {
		return url
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return base + url
}

// RequestOrigin returns scheme://host for r. X-Forwarded-Proto and
// X-Forwarded-Host are honoured only when trustProxy is set.
func RequestOrigin(r *http.Request, trustProxy bool) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if !trustProxy {
		return scheme + "://" + host
	}
	if p := firstHeaderValue(r, "X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	if h := firstHeaderValue(r, "X-Forwarded-Host"); h != "" {
		host = h
	}
	return scheme + "://" + host
}

func firstHeaderValue(r *http.Request, name string) string {
	v, _, _ := strings.Cut(r.Header.Get(name), ",")
	return strings.ToLower(strings.TrimSpace(v))
}

// Absolutizer rewrites media asset URLs against a base origin. The zero
// value leaves URLs untouched.
type Absolutizer struct {
	Base string

	// TrustProxy makes ForRequest honour X-Forwarded-* headers.
	TrustProxy bool
}

// ForRequest returns a, or an Absolutizer for the origin of r when no base
// is configured.
func (a Absolutizer) ForRequest(r *http.Request) Absolutizer {
	return a.Or(RequestOrigin(r, a.TrustProxy))
}

// Or returns a rewrites against origin when no base is configured.
func (a Absolutizer) Or(origin string) Absolutizer {
	if a.Base != "" {
		return a
	}
	return Absolutizer{Base: origin, TrustProxy: a.TrustProxy}
}

// Media rewrites url and every formats[*].url of an asset, a list of assets,
// or nil. The input is never modified; maps are copied along the rewritten
// path and unrelated values are shared.
func (a Absolutizer) Media(v any) any {
	switch m := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, len(m))
		for i, item := range m {
			out[i] = a.Media(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(m))
		for i, item := range m {
			out[i] = a.Media(item)
		}
		return out
	case map[string]any:
		return a.asset(m)
	}
	return v
}

func (a Absolutizer) asset(m map[string]any) map[string]any {
	next := make(map[string]any, len(m))
	for k, v := range m {
		next[k] = v
	}
	if url, ok := m["url"].(string); ok {
		next["url"] = AbsoluteURL(a.Base, url)
	}
	formats, ok := m["formats"].(map[string]any)
	if !ok {
		return next
	}
	rewritten := make(map[string]any, len(formats))
	for name, f := range formats {
		format, ok := f.(map[string]any)
		if !ok {
			rewritten[name] = f
			continue
		}
		copied := make(map[string]any, len(format))
		for k, v := range format {
			copied[k] = v
		}
		if url, ok := format["url"].(string); ok {
			copied["url"] = AbsoluteURL(a.Base, url)
		}
		rewritten[name] = copied
	}
	next["formats"] = rewritten
	return next
}

// Fields applies Media to the values at the given dotted paths of item.
// A path walks through nested objects and lists, so heroBanners.bannerImage
// rewrites bannerImage in every element of the heroBanners list. Missing
// keys are skipped. The result is a copy; item is not modified.
func (a Absolutizer) Fields(item map[string]any, paths ...string) map[string]any {
	if item == nil {
		return nil
	}
	out := item
	for _, p := range paths {
		out = a.path(out, strings.Split(p, "."))
	}
	return out
}

func (a Absolutizer) path(item map[string]any, segs []string) map[string]any {
	v, ok := item[segs[0]]
	if !ok {
		return item
	}
	next := make(map[string]any, len(item))
	for k, val := range item {
		next[k] = val
	}
	if len(segs) == 1 {
		next[segs[0]] = a.Media(v)
		return next
	}
	next[segs[0]] = a.walk(v, segs[1:])
	return next
}

func (a Absolutizer) walk(v any, segs []string) any {
	switch t := v.(type) {
	case map[string]any:
		return a.path(t, segs)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = a.walk(item, segs)
		}
		return out
	}
	return v
}
