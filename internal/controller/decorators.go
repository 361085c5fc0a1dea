package controller

import (
	"context"

	"github.com/GyroZepelix/cornerstone/internal/entity"
	"github.com/GyroZepelix/cornerstone/internal/envelope"
	"github.com/GyroZepelix/cornerstone/internal/media"
)

// Decorator wraps a Controller with additional behavior.
type Decorator func(Controller) Controller

// Chain applies decorators to c. The first decorator is innermost, so it
// sees the request last and the response first.
func Chain(c Controller, decorators ...Decorator) Controller {
	for _, d := range decorators {
		c = d(c)
	}
	return c
}

// Normalizer rewrites a request before it reaches the store. It may modify
// req, which is always a private copy.
type Normalizer func(ctx context.Context, req *Request) error

// WithNormalizer runs fn on Find requests.
func WithNormalizer(fn Normalizer) Decorator {
	return func(next Controller) Controller {
		return &normalized{Controller: next, fn: fn}
	}
}

type normalized struct {
	Controller
	fn Normalizer
}

func (n *normalized) Find(ctx context.Context, req *Request) (Response, error) {
	r := req.clone()
	if err := n.fn(ctx, r); err != nil {
		return Response{}, err
	}
	return n.Controller.Find(ctx, r)
}

// WithDefaultSort applies sort to Find requests that specify none.
func WithDefaultSort(sort ...entity.SortField) Decorator {
	return func(next Controller) Controller {
		return &defaultSort{Controller: next, sort: sort}
	}
}

type defaultSort struct {
	Controller
	sort []entity.SortField
}

func (d *defaultSort) Find(ctx context.Context, req *Request) (Response, error) {
	if len(req.Query.Sort) > 0 {
		return d.Controller.Find(ctx, req)
	}
	r := req.clone()
	r.Query.Sort = append([]entity.SortField(nil), d.sort...)
	return d.Controller.Find(ctx, r)
}

// WithPopulate adds fields to the populate list of Find and FindOne
// requests, keeping whatever the caller asked for.
func WithPopulate(fields ...string) Decorator {
	return func(next Controller) Controller {
		return &populate{Controller: next, fields: fields}
	}
}

// WithDefaultPopulate populates fields only when the caller gave no
// populate parameter.
func WithDefaultPopulate(fields ...string) Decorator {
	return func(next Controller) Controller {
		return &populate{Controller: next, fields: fields, onlyDefault: true}
	}
}

type populate struct {
	Controller
	fields      []string
	onlyDefault bool
}

func (p *populate) apply(req *Request) *Request {
	if req.Query.PopulateAll() || (p.onlyDefault && len(req.Query.Populate) > 0) {
		return req
	}
	r := req.clone()
	r.Query.Populate = mergeUnique(req.Query.Populate, p.fields)
	return r
}

func (p *populate) Find(ctx context.Context, req *Request) (Response, error) {
	return p.Controller.Find(ctx, p.apply(req))
}

func (p *populate) FindOne(ctx context.Context, req *Request) (Response, error) {
	return p.Controller.FindOne(ctx, p.apply(req))
}

func mergeUnique(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// WithMedia absolutizes the media at the given dotted paths of every item
// returned by Find and FindOne. Without a configured base the request
// origin is used. Items in {id, attributes} form are flattened first so the
// paths address the same keys either way.
func WithMedia(abs media.Absolutizer, paths ...string) Decorator {
	return func(next Controller) Controller {
		return &absolutized{Controller: next, abs: abs, paths: paths}
	}
}

type absolutized struct {
	Controller
	abs   media.Absolutizer
	paths []string
}

func (a *absolutized) rewrite(req *Request, resp Response) Response {
	abs := a.abs.Or(req.Origin)
	resp.Data = envelope.MapItems(resp.Data, func(item map[string]any) map[string]any {
		return abs.Fields(envelope.Flatten(item), a.paths...)
	})
	return resp
}

func (a *absolutized) Find(ctx context.Context, req *Request) (Response, error) {
	resp, err := a.Controller.Find(ctx, req)
	if err != nil {
		return resp, err
	}
	return a.rewrite(req, resp), nil
}

func (a *absolutized) FindOne(ctx context.Context, req *Request) (Response, error) {
	resp, err := a.Controller.FindOne(ctx, req)
	if err != nil {
		return resp, err
	}
	return a.rewrite(req, resp), nil
}
