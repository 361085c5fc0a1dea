package entity

import (
	"context"
	"fmt"
	"strings"

	"github.com/GyroZepelix/cornerstone/internal/schema"
)

// relationLoader returns the related records per source id for one relation
// field, in stored order.
type relationLoader func(ctx context.Context, sourceIDs []int64, field string) (map[int64][]*record, error)

// populator fills media, relation and component fields requested by a
// query's populate list.
type populator struct {
	schemas   map[string]schema.ContentType
	media     MediaLookup
	relations relationLoader
}

// populateTargets returns the top-level populatable fields selected by the
// populate list. "*" selects all of them and dotted paths select their head.
func populateTargets(ct schema.ContentType, populate []string) ([]schema.Field, error) {
	all := false
	wanted := map[string]bool{}
	for _, p := range populate {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p == "*" {
			all = true
			continue
		}
		head, _, _ := strings.Cut(p, ".")
		wanted[head] = true
	}

	var out []schema.Field
	for name := range wanted {
		f, ok := ct.Field(name)
		if !ok {
			return nil, invalidQuery("%s has no field %q to populate", ct.Name, name)
		}
		switch f.Type {
		case schema.FieldTypeMedia, schema.FieldTypeRelation, schema.FieldTypeComponent:
		default:
			return nil, invalidQuery("%s: field %q cannot be populated", ct.Name, name)
		}
	}
	for _, f := range ct.Fields {
		switch f.Type {
		case schema.FieldTypeMedia, schema.FieldTypeRelation, schema.FieldTypeComponent:
			if all || wanted[f.Name] {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

// apply populates entries rendered from recs in place. entries[i] belongs
// to recs[i].
func (p *populator) apply(ctx context.Context, ct schema.ContentType, recs []*record, entries []Entry, populate []string) error {
	targets, err := populateTargets(ct, populate)
	if err != nil {
		return err
	}
	if len(targets) == 0 || len(recs) == 0 {
		return nil
	}

	mediaIDs := map[int64]bool{}
	for _, f := range targets {
		for _, rec := range recs {
			collectMediaIDs(f, rec.Attrs[f.Name], mediaIDs)
		}
	}
	assets, err := p.lookupMedia(ctx, mediaIDs)
	if err != nil {
		return err
	}

	for _, f := range targets {
		switch f.Type {
		case schema.FieldTypeMedia:
			for i, rec := range recs {
				entries[i][f.Name] = resolveMedia(f, rec.Attrs[f.Name], assets)
			}
		case schema.FieldTypeComponent:
			for i, rec := range recs {
				entries[i][f.Name] = resolveComponent(f, rec.Attrs[f.Name], assets)
			}
		case schema.FieldTypeRelation:
			if err := p.applyRelation(ctx, f, recs, entries); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *populator) applyRelation(ctx context.Context, f schema.Field, recs []*record, entries []Entry) error {
	target, err := schemaFor(p.schemas, f.RelatesTo)
	if err != nil {
		return err
	}
	ids := make([]int64, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	related, err := p.relations(ctx, ids, f.Name)
	if err != nil {
		return fmt.Errorf("loading relation %s: %w", f.Name, err)
	}
	for i, rec := range recs {
		targets := related[rec.ID]
		if !f.IsMany() {
			if len(targets) == 0 {
				entries[i][f.Name] = nil
			} else {
				entries[i][f.Name] = targets[0].entry(target, nil)
			}
			continue
		}
		list := make([]any, 0, len(targets))
		for _, t := range targets {
			list = append(list, t.entry(target, nil))
		}
		entries[i][f.Name] = list
	}
	return nil
}

func (p *populator) lookupMedia(ctx context.Context, ids map[int64]bool) (map[int64]map[string]any, error) {
	if len(ids) == 0 || p.media == nil {
		return map[int64]map[string]any{}, nil
	}
	list := make([]int64, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	assets, err := p.media.LookupMedia(ctx, list)
	if err != nil {
		return nil, fmt.Errorf("looking up media: %w", err)
	}
	return assets, nil
}

func collectMediaIDs(f schema.Field, value any, into map[int64]bool) {
	switch f.Type {
	case schema.FieldTypeMedia:
		ids, _ := refIDs(value)
		for _, id := range ids {
			into[id] = true
		}
	case schema.FieldTypeComponent:
		for _, c := range componentItems(value) {
			for _, sub := range f.Fields {
				if sub.Type == schema.FieldTypeMedia {
					collectMediaIDs(sub, c[sub.Name], into)
				}
			}
		}
	}
}

func resolveMedia(f schema.Field, value any, assets map[int64]map[string]any) any {
	ids, _ := refIDs(value)
	if !f.IsMany() {
		if len(ids) == 0 {
			return nil
		}
		if asset, ok := assets[ids[0]]; ok {
			return copyAsset(asset)
		}
		return nil
	}
	list := make([]any, 0, len(ids))
	for _, id := range ids {
		if asset, ok := assets[id]; ok {
			list = append(list, copyAsset(asset))
		}
	}
	return list
}

func resolveComponent(f schema.Field, value any, assets map[int64]map[string]any) any {
	items := componentItems(value)
	render := func(c map[string]any) map[string]any {
		out := make(map[string]any, len(f.Fields))
		for _, sub := range f.Fields {
			if sub.Type == schema.FieldTypeMedia {
				out[sub.Name] = resolveMedia(sub, c[sub.Name], assets)
				continue
			}
			out[sub.Name] = c[sub.Name]
		}
		return out
	}

	if !f.Repeatable {
		if len(items) == 0 {
			return nil
		}
		return render(items[0])
	}
	list := make([]any, 0, len(items))
	for _, c := range items {
		list = append(list, render(c))
	}
	return list
}

func componentItems(value any) []map[string]any {
	if m, ok := value.(map[string]any); ok {
		return []map[string]any{m}
	}
	items, _ := toSlice(value)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// copyAsset returns a copy so per-entry rewrites never touch the shared
// lookup result.
func copyAsset(asset map[string]any) map[string]any {
	out := make(map[string]any, len(asset))
	for k, v := range asset {
		if formats, ok := v.(map[string]any); ok && k == "formats" {
			fc := make(map[string]any, len(formats))
			for name, variant := range formats {
				if vm, ok := variant.(map[string]any); ok {
					vc := make(map[string]any, len(vm))
					for vk, vv := range vm {
						vc[vk] = vv
					}
					fc[name] = vc
					continue
				}
				fc[name] = variant
			}
			out[k] = fc
			continue
		}
		out[k] = v
	}
	return out
}
