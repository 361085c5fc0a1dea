package controller

import (
	"context"
	"errors"
	"net/url"

	"github.com/GyroZepelix/cornerstone/internal/category"
	"github.com/GyroZepelix/cornerstone/internal/entity"
	"github.com/GyroZepelix/cornerstone/internal/query"
)

const (
	projectType      = "project"
	projectRelation  = "categories"
	projectRelatedID = "categories.id"
)

// categoryFlag is a project boolean that also holds when the project
// belongs to one of the alias categories (matched by slug or name).
type categoryFlag struct {
	flag    string
	aliases []string
}

var projectFlags = []categoryFlag{
	{flag: "isPastProject", aliases: []string{"past-project", "completed"}},
	{flag: "isNewConstruction", aliases: []string{"new-construction", "new construction"}},
	{flag: "isRehabilitation", aliases: []string{"rehabilitation"}},
	{flag: "isAffordable", aliases: []string{"affordable", "affordable-housing", "affordable housing"}},
	{flag: "isMarketRate", aliases: []string{"market-rate", "market rate"}},
	{flag: "isCommercial", aliases: []string{"commercial"}},
	{flag: "isMixedUse", aliases: []string{"mixed-use", "mixed use"}},
	{flag: "isMultiFamilyResidential", aliases: []string{"multi-family-residential", "multi-family residential", "multifamily"}},
	{flag: "isFeatured"},
}

func (cf categoryFlag) filter() entity.Filter {
	if len(cf.aliases) == 0 {
		return entity.Eq(cf.flag, true)
	}
	or := entity.Or{entity.Eq(cf.flag, true)}
	for _, alias := range cf.aliases {
		or = append(or,
			entity.Cond{Field: projectRelation + ".slug", Op: entity.OpEqi, Value: alias},
			entity.Cond{Field: projectRelation + ".name", Op: entity.OpEqi, Value: alias},
		)
	}
	return or
}

var (
	categoryParams = []string{"category", "categoryId", "categorySlug", "categoryName"}
	statusParams   = []string{"status", "statusId", "statusSlug", "statusName"}
)

// projectFilters translates the project listing parameters:
//
//	isFeatured, isCommercial, ...   flag filters (1, true)
//	category, categoryId, ...       category membership, resolved to ids
//	status, statusId, ...           status membership, resolved to ids
//	relatedTo=<id>                  projects sharing the first category of id
//	id=<id>                         a single project
func projectFilters(resolver *category.Resolver, store entity.Store) Normalizer {
	return func(ctx context.Context, req *Request) error {
		params := req.Params
		filters := []entity.Filter{req.Query.Filters}

		for _, cf := range projectFlags {
			if query.Truthy(params[cf.flag]) {
				filters = append(filters, cf.filter())
			}
		}

		if _, raw, ok := query.First(params, "id"); ok {
			id, err := query.PositiveInt("id", raw)
			if err != nil {
				return invalidParams(err)
			}
			filters = append(filters, entity.Eq("id", int64(id)))
		}

		if _, raw, ok := query.First(params, "relatedTo"); ok {
			f, err := relatedProjects(ctx, store, query.Split(raw)[0])
			if err != nil {
				return err
			}
			filters = append(filters, f)
		} else if ref, ok := refParam(params, categoryParams...); ok {
			f, err := resolver.Filter(ctx, category.KindCategory, projectRelatedID, ref)
			if err != nil {
				return classify(err, "resolving project category")
			}
			filters = append(filters, f)
		}

		if ref, ok := refParam(params, statusParams...); ok {
			f, err := resolver.Filter(ctx, category.KindStatus, projectRelatedID, ref)
			if err != nil {
				return classify(err, "resolving project status")
			}
			filters = append(filters, f)
		}

		req.Query.Filters = entity.AndOf(filters...)
		return nil
	}
}

// relatedProjects selects projects in the first category of the source
// project, excluding the source. A source without categories, or one that
// does not exist, yields an empty listing.
func relatedProjects(ctx context.Context, store entity.Store, raw string) (entity.Filter, error) {
	id, err := query.PositiveInt("relatedTo", raw)
	if err != nil {
		return nil, invalidParams(err)
	}
	source, err := store.FindOne(ctx, projectType, int64(id), entity.Query{
		Populate:         []string{projectRelation},
		PublicationState: entity.PublicationPreview,
	})
	if errors.Is(err, entity.ErrNotFound) {
		return entity.None(), nil
	}
	if err != nil {
		return nil, classify(err, "loading related project %d", id)
	}

	cats, _ := source[projectRelation].([]any)
	if len(cats) == 0 {
		return entity.None(), nil
	}
	first, _ := cats[0].(map[string]any)
	catID, ok := first["id"].(int64)
	if !ok {
		return entity.None(), nil
	}
	return entity.And{
		entity.Eq(projectRelatedID, catID),
		entity.Cond{Field: "id", Op: entity.OpNe, Value: int64(id)},
	}, nil
}

// refParam returns the first present reference among names. The object
// forms name[id], name[slug] and name[name] are accepted too.
func refParam(params url.Values, names ...string) (any, bool) {
	for _, name := range names {
		if vs := query.Multi(params, name); len(vs) > 0 {
			items := make([]any, len(vs))
			for i, v := range vs {
				items[i] = v
			}
			if len(items) == 1 {
				return items[0], true
			}
			return items, true
		}
		for _, key := range []string{"id", "slug", "name"} {
			if v := params.Get(name + "[" + key + "]"); v != "" {
				return map[string]any{key: v}, true
			}
		}
	}
	return nil, false
}

// projectWrites resolves the "category" and "status" payload keys into the
// categories relation, creating missing categories by name. On update
// without an explicit categories list, the stored links are kept except
// those of a kind the payload sets: a new status replaces the old status
// and a new category replaces the old categories.
type projectWrites struct {
	Controller
	resolver *category.Resolver
	store    entity.Store
}

func withProjectWrites(resolver *category.Resolver, store entity.Store) Decorator {
	return func(next Controller) Controller {
		return &projectWrites{Controller: next, resolver: resolver, store: store}
	}
}

func (p *projectWrites) Create(ctx context.Context, req *Request) (Response, error) {
	r, err := p.resolve(ctx, req, nil)
	if err != nil {
		return Response{}, err
	}
	return p.Controller.Create(ctx, r)
}

func (p *projectWrites) Update(ctx context.Context, req *Request) (Response, error) {
	r, err := p.resolve(ctx, req, p.storedLinks)
	if err != nil {
		return Response{}, err
	}
	return p.Controller.Update(ctx, r)
}

// link is a stored categories entry and the kind it was tagged with.
type link struct {
	id   int64
	kind category.Kind
}

// storedLinks loads the categories currently linked to the project. A
// missing project yields no links; the update itself reports the 404.
func (p *projectWrites) storedLinks(ctx context.Context, id int64) ([]link, error) {
	stored, err := p.store.FindOne(ctx, projectType, id, entity.Query{
		Populate:         []string{projectRelation},
		PublicationState: entity.PublicationPreview,
	})
	if errors.Is(err, entity.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "loading project %d", id)
	}
	items, _ := stored[projectRelation].([]any)
	links := make([]link, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		linkID, ok := m["id"].(int64)
		if !ok {
			continue
		}
		kind := category.KindCategory
		if t, _ := m["type"].(string); t == string(category.KindStatus) {
			kind = category.KindStatus
		}
		links = append(links, link{id: linkID, kind: kind})
	}
	return links, nil
}

func (p *projectWrites) resolve(ctx context.Context, req *Request, stored func(context.Context, int64) ([]link, error)) (*Request, error) {
	catRef, hasCat := req.Body["category"]
	statusRef, hasStatus := req.Body["status"]
	if !hasCat && !hasStatus {
		return req, nil
	}

	body := make(map[string]any, len(req.Body))
	for k, v := range req.Body {
		body[k] = v
	}
	delete(body, "category")
	delete(body, "status")

	var refs []any
	existing, explicit := body[projectRelation]
	switch existing := existing.(type) {
	case nil:
	case []any:
		refs = append(refs, existing...)
	default:
		refs = append(refs, existing)
	}

	if !explicit && stored != nil && req.HasID {
		links, err := stored(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		for _, l := range links {
			if (l.kind == category.KindCategory && hasCat) || (l.kind == category.KindStatus && hasStatus) {
				continue
			}
			refs = append(refs, l.id)
		}
	}

	for _, w := range []struct {
		kind category.Kind
		ref  any
		ok   bool
	}{
		{category.KindCategory, catRef, hasCat},
		{category.KindStatus, statusRef, hasStatus},
	} {
		if !w.ok || w.ref == nil {
			continue
		}
		ids, err := p.resolver.FindOrCreateAll(ctx, w.kind, w.ref)
		if err != nil {
			return nil, writeError(err, "resolving project %s", w.kind)
		}
		for _, id := range ids {
			refs = append(refs, id)
		}
	}
	body[projectRelation] = refs

	r := req.clone()
	r.Body = body
	return r, nil
}
