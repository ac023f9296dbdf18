// Package catalog serves the spa's services and locations. Reads go through
// the tiered cache and the request coordinator; when the store is empty or
// unreachable the built-in catalog is served instead.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"glowlogy/cmd/internal/apperr"
	"glowlogy/cmd/internal/cache"
	"glowlogy/cmd/internal/coord"
	"glowlogy/cmd/internal/docstore"
)

const (
	ServicesCollection  = "services"
	LocationsCollection = "locations"
)

type Service struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	Price       int    `json:"price"`
	Image       string `json:"image,omitempty"`
	Popular     bool   `json:"popular"`
	Active      bool   `json:"active"`
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Location struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	City        string      `json:"city"`
	State       string      `json:"state"`
	Address     string      `json:"address"`
	Phone       string      `json:"phone"`
	Email       string      `json:"email"`
	Hours       string      `json:"hours"`
	Coordinates Coordinates `json:"coordinates"`
	Image       string      `json:"image,omitempty"`
	Featured    bool        `json:"featured"`
	Active      bool        `json:"active"`
	Amenities   []string    `json:"amenities"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Cache is the subset of cache.Tiered the catalog needs.
type Cache interface {
	Get(ctx context.Context, ns string, dst any) (cache.Source, bool)
	Generation(ns string) uint64
	SetIfUnchanged(ctx context.Context, ns string, gen uint64, payload any) (bool, error)
}

// Deps are the collaborators of Catalog. Store and Cache are required.
type Deps struct {
	Store docstore.Store
	Cache Cache
	Coord *coord.Coordinator
	Log   *slog.Logger
}

// Catalog reads services and locations.
type Catalog struct {
	store docstore.Store
	cache Cache
	coord *coord.Coordinator
	log   *slog.Logger

	batch *coord.Batcher[Service]
}

// Option configures Catalog.
type Option func(*catalogOptions)

type catalogOptions struct {
	batch []coord.BatcherOption[Service]
}

// WithBatchWindow overrides coord.DefaultBatchWindow for ServicesByIDs.
func WithBatchWindow(d time.Duration) Option {
	return func(o *catalogOptions) {
		o.batch = append(o.batch, coord.WithWindow[Service](d))
	}
}

// WithBatchObserver reports batch flushes to obs.
func WithBatchObserver(obs coord.Observer) Option {
	return func(o *catalogOptions) {
		o.batch = append(o.batch, coord.WithBatchObserver[Service](obs))
	}
}

// New constructs a Catalog.
func New(d Deps, opts ...Option) (*Catalog, error) {
	if d.Store == nil {
		return nil, errors.New("catalog: nil store")
	}
	if d.Cache == nil {
		return nil, errors.New("catalog: nil cache")
	}
	var o catalogOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	c := &Catalog{
		store: d.Store,
		cache: d.Cache,
		coord: d.Coord,
		log:   d.Log,
	}
	if c.coord == nil {
		c.coord = coord.New(nil)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.batch = coord.NewBatcher(func(s Service) string { return s.ID }, o.batch...)
	return c, nil
}

// Categories lists the service categories.
func (c *Catalog) Categories() []Category {
	return append([]Category(nil), categories...)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, apperr.ErrNotFound)
}

// loadAll runs the shared read path: cache, then one deduplicated store
// query, then defaults. Store results are cached; defaults served because of
// a store failure are not.
func loadAll[T any](ctx context.Context, c *Catalog, ns, collection, order string, useCache bool, fallback []T) []T {
	if useCache {
		var cached []T
		if _, ok := c.cache.Get(ctx, ns, &cached); ok {
			return cached
		}
	}

	list, err := coord.Dedupe(ctx, c.coord, ns+":all", func(ctx context.Context) ([]T, error) {
		gen := c.cache.Generation(ns)
		docs, err := c.store.Query(ctx, collection, docstore.Query{
			Where:   []docstore.Filter{docstore.Eq("active", true)},
			OrderBy: order,
			Desc:    true,
		})
		if err != nil {
			return nil, err
		}
		out := make([]T, 0, len(docs))
		for _, d := range docs {
			var v T
			if err := d.Decode(&v); err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		if len(out) == 0 {
			out = append(out, fallback...)
		}
		if _, err := c.cache.SetIfUnchanged(ctx, ns, gen, out); err != nil {
			c.log.Warn("catalog.cache.set.fail", "namespace", ns, "err", err)
		}
		return out, nil
	})
	if err != nil {
		c.log.Warn("catalog.load.fail", "collection", collection, "err", err)
		return append([]T(nil), fallback...)
	}
	return list
}
