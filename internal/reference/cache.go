// Package reference serves small lookup rows (company header, clinic details) that
// notification templates merge into their messages. A lookup hits the database once
// and is then served from memory until its TTL passes or it is refreshed.
package reference

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/maypok86/otter"

	"github.com/katasec/dstream-rowwatch/internal/logging"
	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// Definition names one lookup query.
type Definition struct {
	Name  string
	Query string
	TTL   time.Duration // zero keeps the row until Refresh
}

// untilRefresh is the lifetime of rows whose definition sets no TTL.
const untilRefresh = 10 * 365 * 24 * time.Hour

// Cache resolves reference rows by name.
type Cache struct {
	sessions cdc.SessionProvider
	defs     map[string]Definition
	rows     otter.CacheWithVariableTTL[string, cdc.Row]
	log      hclog.Logger
}

// New builds a cache over defs.
func New(sessions cdc.SessionProvider, defs []Definition) (*Cache, error) {
	byName := make(map[string]Definition, len(defs))
	for _, d := range defs {
		if d.Name == "" || d.Query == "" {
			return nil, fmt.Errorf("reference definitions need a name and a query")
		}
		byName[d.Name] = d
	}

	rows, err := otter.MustBuilder[string, cdc.Row](len(defs) + 1).
		WithVariableTTL().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create reference cache: %w", err)
	}

	return &Cache{
		sessions: sessions,
		defs:     byName,
		rows:     rows,
		log:      logging.GetLogger().Named("reference"),
	}, nil
}

// Get returns the first row of the named lookup. A lookup that finds no row returns
// nil and is tried again on the next call.
func (c *Cache) Get(ctx context.Context, name string) (cdc.Row, error) {
	if row, ok := c.rows.Get(name); ok {
		return row, nil
	}
	return c.Refresh(ctx, name)
}

// Refresh reloads the named lookup from the database.
func (c *Cache) Refresh(ctx context.Context, name string) (cdc.Row, error) {
	def, ok := c.defs[name]
	if !ok {
		return nil, fmt.Errorf("unknown reference %q", name)
	}

	session, err := c.sessions.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session for reference %s: %w", name, err)
	}
	defer session.Close()

	rows, err := session.Query(ctx, cdc.Statement{SQL: def.Query})
	if err != nil {
		return nil, fmt.Errorf("reference %s query failed: %w", name, err)
	}
	if len(rows) == 0 {
		c.rows.Delete(name)
		c.log.Warn("Reference query returned no rows", "reference", name)
		return nil, nil
	}

	ttl := def.TTL
	if ttl <= 0 {
		ttl = untilRefresh
	}
	c.rows.Set(name, rows[0], ttl)
	c.log.Debug("Reference loaded", "reference", name, "ttl", ttl)
	return rows[0], nil
}

// Close releases the cache.
func (c *Cache) Close() {
	c.rows.Close()
}
