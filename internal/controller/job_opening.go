package controller

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/GyroZepelix/cornerstone/internal/entity"
	"github.com/GyroZepelix/cornerstone/internal/query"
)

const jobOpeningType = "job_opening"

var jobListingFields = []string{
	"id", "position", "location", "job_type", "job_location",
	"working_hour", "base_salary", "date_posted", "valid_through",
}

var jobDetailFields = []string{
	"id", "position", "location", "job_type", "description",
	"responsibilities", "qualification", "job_benefits", "contacts",
	"job_location", "working_hour", "base_salary", "date_posted", "valid_through",
}

// jobSearchFields accept a case-insensitive substring match, e.g.
// ?location=remote.
var jobSearchFields = []string{
	"position", "location", "job_type", "description", "responsibilities",
	"qualification", "job_benefits", "contacts", "job_location",
	"working_hour", "base_salary", "date_posted", "valid_through",
}

// jobOpenings serves the public job board. Listings are restricted to
// published entries and a fixed field set; details carry an is_expired
// flag computed against the current date.
type jobOpenings struct {
	Controller
	store entity.Store
	now   func() time.Time
}

func withJobOpenings(store entity.Store, now func() time.Time) Decorator {
	if now == nil {
		now = time.Now
	}
	return func(next Controller) Controller {
		return &jobOpenings{Controller: next, store: store, now: now}
	}
}

func (j *jobOpenings) today() string {
	return j.now().UTC().Format(time.DateOnly)
}

// Find lists published openings. Besides the generic parameters it takes
// salary_min, salary_max, date_from, date_to, valid_only and start/limit.
func (j *jobOpenings) Find(ctx context.Context, req *Request) (Response, error) {
	params := req.Params
	filters := []entity.Filter{req.Query.Filters}

	for _, field := range jobSearchFields {
		if v := params.Get(field); v != "" {
			filters = append(filters, entity.Cond{Field: field, Op: entity.OpContainsi, Value: v})
		}
	}

	for _, bound := range []struct {
		param string
		op    entity.Op
	}{
		{"salary_min", entity.OpGte},
		{"salary_max", entity.OpLte},
	} {
		raw := strings.TrimSpace(params.Get(bound.param))
		if raw == "" {
			continue
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Response{}, badInput(CodeInvalidParams, "%s: %q is not a number", bound.param, raw)
		}
		filters = append(filters, entity.Cond{Field: "base_salary", Op: bound.op, Value: n})
	}

	for _, bound := range []struct {
		param string
		op    entity.Op
	}{
		{"date_from", entity.OpGte},
		{"date_to", entity.OpLte},
	} {
		raw := strings.TrimSpace(params.Get(bound.param))
		if raw == "" {
			continue
		}
		day, err := parseDay(raw)
		if err != nil {
			return Response{}, badInput(CodeInvalidParams, "%s: %q is not a date", bound.param, raw)
		}
		filters = append(filters, entity.Cond{Field: "date_posted", Op: bound.op, Value: day})
	}

	if query.Truthy(params.Get("valid_only")) {
		filters = append(filters, entity.Cond{Field: "valid_through", Op: entity.OpGte, Value: j.today()})
	}

	r := req.clone()
	r.Query.Filters = entity.AndOf(filters...)
	r.Query.Fields = append([]string(nil), jobListingFields...)
	r.Query.PublicationState = entity.PublicationLive

	if raw := params["start"]; len(raw) > 0 && strings.TrimSpace(raw[0]) != "" {
		start, err := query.NonNegativeInt("start", raw[0])
		if err != nil {
			return Response{}, invalidParams(err)
		}
		r.Query.Pagination = entity.Pagination{
			Offset: true,
			Start:  start,
			Limit:  req.Query.Pagination.PageSize,
		}
	}

	return j.Controller.Find(ctx, r)
}

// FindOne returns the full opening with is_expired set when valid_through
// lies before today.
func (j *jobOpenings) FindOne(ctx context.Context, req *Request) (Response, error) {
	if !req.HasID {
		return Response{}, badInput(CodeMissingID, "job opening id is required")
	}

	entry, err := j.store.FindOne(ctx, jobOpeningType, req.ID, entity.Query{
		Fields:           jobDetailFields,
		Populate:         []string{"*"},
		PublicationState: entity.PublicationLive,
	})
	if errors.Is(err, entity.ErrNotFound) {
		return Response{}, notFound("job opening not found")
	}
	if err != nil {
		return Response{}, classify(err, "finding job opening %d", req.ID)
	}

	out := make(map[string]any, len(entry)+1)
	for k, v := range entry {
		out[k] = v
	}
	out["is_expired"] = j.expired(entry["valid_through"])
	return Response{Data: out, Meta: map[string]any{}}, nil
}

// expired compares the stored date against today. Entries without a
// usable valid_through never expire.
func (j *jobOpenings) expired(v any) bool {
	var day string
	switch t := v.(type) {
	case string:
		d, err := parseDay(t)
		if err != nil {
			return false
		}
		day = d
	case time.Time:
		day = t.UTC().Format(time.DateOnly)
	default:
		return false
	}
	return day < j.today()
}

// parseDay accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the
// calendar date.
func parseDay(raw string) (string, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.Format(time.DateOnly), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return "", err
	}
	return t.UTC().Format(time.DateOnly), nil
}
