package catalog

import (
	"context"
	"errors"
	"strings"

	"glowlogy/cmd/internal/cache"
	"glowlogy/cmd/internal/docstore"
)

// ServiceFilter narrows ListServices. Zero values mean no filter.
type ServiceFilter struct {
	Category string
	Limit    int
	UseCache bool
}

// ListServices returns active services, popular first.
func (c *Catalog) ListServices(ctx context.Context, f ServiceFilter) ([]Service, error) {
	all := loadAll(ctx, c, cache.NSServices, ServicesCollection, "popular", f.UseCache, defaultServices)

	out := make([]Service, 0, len(all))
	for _, s := range all {
		if f.Category != "" && s.Category != f.Category {
			continue
		}
		out = append(out, s)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// PopularServices returns up to limit popular services (6 when limit <= 0).
func (c *Catalog) PopularServices(ctx context.Context, limit int) ([]Service, error) {
	if limit <= 0 {
		limit = 6
	}
	all, err := c.ListServices(ctx, ServiceFilter{UseCache: true})
	if err != nil {
		return nil, err
	}
	out := make([]Service, 0, limit)
	for _, s := range all {
		if s.Popular {
			out = append(out, s)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// ServiceByID looks in the cached list first, then the store, then the
// built-in catalog.
func (c *Catalog) ServiceByID(ctx context.Context, id string) (Service, error) {
	id = strings.TrimSpace(id)
	var cached []Service
	if _, ok := c.cache.Get(ctx, cache.NSServices, &cached); ok {
		for _, s := range cached {
			if s.ID == id {
				return s, nil
			}
		}
	}

	doc, err := c.store.Get(ctx, ServicesCollection, id)
	switch {
	case err == nil:
		var s Service
		if err := doc.Decode(&s); err == nil {
			return s, nil
		}
	case !errors.Is(err, docstore.ErrNotFound):
		c.log.Warn("catalog.service.get.fail", "id", id, "err", err)
	}

	for _, s := range defaultServices {
		if s.ID == id {
			return s, nil
		}
	}
	return Service{}, notFound("service", id)
}

// ServicesByIDs resolves several services in one batched store read. Ids the
// store does not know are filled from the built-in catalog; unknown ids are
// skipped.
func (c *Catalog) ServicesByIDs(ctx context.Context, ids []string) ([]Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := c.batch.Load(ctx, ServicesCollection, ids, func(ctx context.Context, ids []string) ([]Service, error) {
		docs, err := c.store.GetMany(ctx, ServicesCollection, ids)
		if err != nil {
			return nil, err
		}
		out := make([]Service, 0, len(docs))
		for _, d := range docs {
			var s Service
			if err := d.Decode(&s); err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	})
	if err != nil {
		c.log.Warn("catalog.services.batch.fail", "err", err)
		found = nil
	}

	byID := make(map[string]Service, len(found))
	for _, s := range found {
		byID[s.ID] = s
	}
	for _, s := range defaultServices {
		if _, ok := byID[s.ID]; !ok {
			byID[s.ID] = s
		}
	}

	out := make([]Service, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}
