package piston

import (
	"context"
	"fmt"
	"sort"

	"github.com/jason-s-yu/codincod/internal/models"
)

// Catalog is the set of languages loaded once at startup. It is never mutated
// after LoadCatalog returns, so it is safe for concurrent readers.
type Catalog struct {
	byName  map[string]models.Language
	byAlias map[string]string
	ordered []models.Language
}

// NewCatalog indexes langs by name and alias. When a name repeats, the last entry wins,
// matching the order the service lists newer versions in.
func NewCatalog(langs []models.Language) *Catalog {
	c := &Catalog{
		byName:  make(map[string]models.Language, len(langs)),
		byAlias: make(map[string]string),
	}
	for _, l := range langs {
		c.byName[l.Name] = l
		for _, a := range l.Aliases {
			c.byAlias[a] = l.Name
		}
	}
	for _, l := range c.byName {
		c.ordered = append(c.ordered, l)
	}
	sort.Slice(c.ordered, func(i, j int) bool { return c.ordered[i].Name < c.ordered[j].Name })
	return c
}

// LoadCatalog fetches the runtimes from the execution service.
func LoadCatalog(ctx context.Context, client *Client) (*Catalog, error) {
	langs, err := client.Runtimes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load language catalog: %w", err)
	}
	return NewCatalog(langs), nil
}

// Get resolves a language by name or alias.
func (c *Catalog) Get(name string) (models.Language, error) {
	if l, ok := c.byName[name]; ok {
		return l, nil
	}
	if real, ok := c.byAlias[name]; ok {
		return c.byName[real], nil
	}
	return models.Language{}, fmt.Errorf("%w: unknown language %q", models.ErrNotFound, name)
}

// All returns the languages sorted by name.
func (c *Catalog) All() []models.Language {
	out := make([]models.Language, len(c.ordered))
	copy(out, c.ordered)
	return out
}
