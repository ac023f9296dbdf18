package catalog

import (
	"context"
	"errors"
	"strings"

	"glowlogy/cmd/internal/cache"
	"glowlogy/cmd/internal/docstore"
)

// LocationFilter narrows ListLocations. A nil Featured matches both.
type LocationFilter struct {
	City     string
	Featured *bool
	UseCache bool
}

// ListLocations returns active locations, featured first.
func (c *Catalog) ListLocations(ctx context.Context, f LocationFilter) ([]Location, error) {
	all := loadAll(ctx, c, cache.NSLocations, LocationsCollection, "featured", f.UseCache, defaultLocations)

	out := make([]Location, 0, len(all))
	for _, l := range all {
		if f.City != "" && l.City != f.City {
			continue
		}
		if f.Featured != nil && l.Featured != *f.Featured {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (c *Catalog) FeaturedLocations(ctx context.Context) ([]Location, error) {
	featured := true
	return c.ListLocations(ctx, LocationFilter{Featured: &featured, UseCache: true})
}

// Cities lists the distinct cities in first-seen order.
func (c *Catalog) Cities(ctx context.Context) ([]string, error) {
	all, err := c.ListLocations(ctx, LocationFilter{UseCache: true})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, l := range all {
		if _, ok := seen[l.City]; ok {
			continue
		}
		seen[l.City] = struct{}{}
		out = append(out, l.City)
	}
	return out, nil
}

// SearchLocations matches q case-insensitively against name, city and address.
func (c *Catalog) SearchLocations(ctx context.Context, q string) ([]Location, error) {
	all, err := c.ListLocations(ctx, LocationFilter{UseCache: true})
	if err != nil {
		return nil, err
	}
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return all, nil
	}
	var out []Location
	for _, l := range all {
		if strings.Contains(strings.ToLower(l.Name), q) ||
			strings.Contains(strings.ToLower(l.City), q) ||
			strings.Contains(strings.ToLower(l.Address), q) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c *Catalog) LocationByID(ctx context.Context, id string) (Location, error) {
	id = strings.TrimSpace(id)
	var cached []Location
	if _, ok := c.cache.Get(ctx, cache.NSLocations, &cached); ok {
		for _, l := range cached {
			if l.ID == id {
				return l, nil
			}
		}
	}

	doc, err := c.store.Get(ctx, LocationsCollection, id)
	switch {
	case err == nil:
		var l Location
		if err := doc.Decode(&l); err == nil {
			return l, nil
		}
	case !errors.Is(err, docstore.ErrNotFound):
		c.log.Warn("catalog.location.get.fail", "id", id, "err", err)
	}

	for _, l := range defaultLocations {
		if l.ID == id {
			return l, nil
		}
	}
	return Location{}, notFound("location", id)
}
