// Package controller implements the per content type request handling
// chain. Every content type gets the default Core behavior; selected types
// wrap it with decorators that normalize query parameters, merge populate
// and sort defaults, and absolutize media URLs in the response.
package controller

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	goerrors "github.com/goliatone/go-errors"

	"github.com/GyroZepelix/cornerstone/internal/entity"
	"github.com/GyroZepelix/cornerstone/internal/query"
)

// Error text codes returned to clients.
const (
	CodeInvalidParams  = "INVALID_PARAMS"
	CodeInvalidID      = "INVALID_ID"
	CodeMissingID      = "MISSING_ID"
	CodeInvalidBody    = "INVALID_BODY"
	CodeInvalidPayload = "INVALID_PAYLOAD"
)

// Request is one controller invocation.
type Request struct {
	// Params are the raw query parameters, kept for per-type normalizers.
	Params url.Values

	// Query is the structured query parsed from Params.
	Query entity.Query

	// Body is the "data" object of a create or update request.
	Body map[string]any

	// ID is the entry id from the path; HasID reports whether one was given.
	ID    int64
	HasID bool

	// Origin is the scheme://host the request arrived on.
	Origin string
}

// NewRequest parses the generic query parameters. Malformed parameters
// fail here, before any data access.
func NewRequest(params url.Values) (*Request, error) {
	q, err := query.ParseParams(params)
	if err != nil {
		return nil, invalidParams(err)
	}
	return &Request{Params: params, Query: q}, nil
}

// clone returns a shallow copy whose Query slices may be replaced without
// touching the caller's request.
func (r *Request) clone() *Request {
	c := *r
	return &c
}

// Response is the {data, meta} envelope of a controller result. Data is
// a list of entries, a single entry, or nil.
type Response struct {
	Data any
	Meta map[string]any
}

// Controller handles the four generated operations of a content type.
type Controller interface {
	Find(ctx context.Context, req *Request) (Response, error)
	FindOne(ctx context.Context, req *Request) (Response, error)
	Create(ctx context.Context, req *Request) (Response, error)
	Update(ctx context.Context, req *Request) (Response, error)
}

func invalidParams(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, err.Error()).WithTextCode(CodeInvalidParams)
}

func badInput(code, format string, args ...any) error {
	return goerrors.New(fmt.Sprintf(format, args...), goerrors.CategoryBadInput).WithTextCode(code)
}

func notFound(format string, args ...any) error {
	return goerrors.New(fmt.Sprintf(format, args...), goerrors.CategoryNotFound)
}

// classify maps store and parser errors to categorized errors. Errors that
// already carry a category pass through; anything else is wrapped with op
// and surfaces as an internal error.
func classify(err error, op string, args ...any) error {
	if err == nil {
		return nil
	}
	var ge *goerrors.Error
	if errors.As(err, &ge) {
		return err
	}
	switch {
	case errors.Is(err, query.ErrInvalidParam), errors.Is(err, entity.ErrInvalidQuery):
		return invalidParams(err)
	case errors.Is(err, entity.ErrUnknownContentType):
		return goerrors.Wrap(err, goerrors.CategoryNotFound, err.Error())
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(op, args...), err)
}
