package controller

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/GyroZepelix/cornerstone/internal/audit"
	"github.com/GyroZepelix/cornerstone/internal/category"
	"github.com/GyroZepelix/cornerstone/internal/entity"
	"github.com/GyroZepelix/cornerstone/internal/media"
	"github.com/GyroZepelix/cornerstone/internal/schema"
)

// Deps are the collaborators shared by every controller.
type Deps struct {
	Store    entity.Store
	Schemas  []schema.ContentType
	Resolver *category.Resolver
	Media    media.Absolutizer
	Audit    audit.Logger
	Logger   zerolog.Logger

	// Now is the clock used for date based flags. Defaults to time.Now.
	Now func() time.Time
}

// Registry maps content types to their controller chains.
type Registry struct {
	byName  map[string]Controller
	byRoute map[string]string
	schemas []schema.ContentType

	trustProxy bool
}

// NewRegistry builds a controller for every schema. Types with custom
// behavior get their decorators here; the rest use Core unchanged.
func NewRegistry(deps Deps) *Registry {
	if deps.Resolver == nil {
		deps.Resolver = category.NewResolver(deps.Store, deps.Audit, deps.Logger)
	}

	r := &Registry{
		byName:  make(map[string]Controller, len(deps.Schemas)),
		byRoute: make(map[string]string, len(deps.Schemas)),
		schemas: append([]schema.ContentType(nil), deps.Schemas...),

		trustProxy: deps.Media.TrustProxy,
	}
	sort.Slice(r.schemas, func(i, j int) bool { return r.schemas[i].Name < r.schemas[j].Name })

	for _, ct := range r.schemas {
		core := NewCore(ct, deps.Store, deps.Audit, deps.Logger)
		r.byName[ct.Name] = Chain(core, decoratorsFor(ct.Name, deps)...)
		r.byRoute[ct.RoutePath()] = ct.Name
	}
	deps.Logger.Debug().Int("content_types", len(r.schemas)).Msg("controllers registered")
	return r
}

func decoratorsFor(name string, deps Deps) []Decorator {
	switch name {
	case projectType:
		return []Decorator{
			withProjectWrites(deps.Resolver, deps.Store),
			WithMedia(deps.Media, "image", "gallery"),
			WithDefaultPopulate("image", "gallery", "categories"),
			WithNormalizer(projectFilters(deps.Resolver, deps.Store)),
		}
	case jobOpeningType:
		return []Decorator{withJobOpenings(deps.Store, deps.Now)}
	case "home_hero":
		return []Decorator{
			WithMedia(deps.Media, "heroBanners"),
			WithPopulate("heroBanners"),
		}
	case "portfolio_hero":
		return []Decorator{
			WithMedia(deps.Media, "heroBanners.bannerImage"),
			WithPopulate("heroBanners"),
		}
	case "team_member":
		return []Decorator{
			WithMedia(deps.Media, "photo"),
			WithPopulate("photo"),
			WithDefaultSort(entity.SortField{Field: "sortOrder"}),
		}
	case "contact_detail":
		return []Decorator{WithDefaultSort(entity.SortField{Field: "sortOrder"})}
	case "press_item":
		return []Decorator{WithDefaultSort(entity.SortField{Field: "date", Desc: true})}
	case "availability":
		return []Decorator{
			WithMedia(deps.Media, "image"),
			WithPopulate("image"),
		}
	}
	return nil
}

// For returns the controller of a content type by name.
func (r *Registry) For(name string) (Controller, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// ByRoute returns the controller and schema name for a URL segment.
func (r *Registry) ByRoute(route string) (Controller, string, bool) {
	name, ok := r.byRoute[route]
	if !ok {
		return nil, "", false
	}
	return r.byName[name], name, true
}

// Schemas returns the registered content types sorted by name.
func (r *Registry) Schemas() []schema.ContentType {
	return r.schemas
}
