// Package catalog loads the category directory that maps category ids to
// display names.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
)

// AllItemsID is the id of the sentinel "All Items" category.
const AllItemsID = "all"

type catalogFile struct {
	Categories []domain.Category `yaml:"categories"`
}

// Catalog is an ordered, read-only category directory. The sentinel
// "All Items" entry is always first.
type Catalog struct {
	categories []domain.Category
	byID       map[string]domain.Category
}

// New builds a catalog from categories, prepending the sentinel when absent.
func New(categories []domain.Category) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]domain.Category, len(categories)+1)}

	sentinel := domain.Category{ID: AllItemsID, Name: domain.AllItemsCategory}
	c.categories = append(c.categories, sentinel)
	c.byID[sentinel.ID] = sentinel

	for _, category := range categories {
		category.ID = strings.TrimSpace(category.ID)
		category.Name = strings.TrimSpace(category.Name)
		if category.ID == "" || category.Name == "" {
			return nil, fmt.Errorf("category id and name are required")
		}
		if category.Name == domain.AllItemsCategory {
			continue
		}
		if _, dup := c.byID[category.ID]; dup {
			return nil, fmt.Errorf("duplicate category id: %s", category.ID)
		}
		c.categories = append(c.categories, category)
		c.byID[category.ID] = category
	}
	return c, nil
}

// Load reads a YAML catalog file. An empty path yields a catalog holding only
// the sentinel.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return New(nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return New(file.Categories)
}

// Categories returns the categories in display order.
func (c *Catalog) Categories() []domain.Category {
	out := make([]domain.Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// CategoryName returns the display name for id.
func (c *Catalog) CategoryName(id string) (string, bool) {
	category, ok := c.byID[id]
	return category.Name, ok
}

// Lookup finds a category by id or, failing that, by case-insensitive name.
func (c *Catalog) Lookup(idOrName string) (domain.Category, bool) {
	idOrName = strings.TrimSpace(idOrName)
	if category, ok := c.byID[idOrName]; ok {
		return category, true
	}
	for _, category := range c.categories {
		if strings.EqualFold(category.Name, idOrName) {
			return category, true
		}
	}
	return domain.Category{}, false
}
