package domain

import (
	"time"
)

// AllItemsCategory is the sentinel category name meaning "no category filter".
const AllItemsCategory = "All Items"

// Category maps a category id to its display name.
type Category struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// KnowledgeItem is a searchable document owned by an organization.
type KnowledgeItem struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"-"`
	Category       string    `json:"category"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
