// Package domain contains core domain types for the hub application.
package domain

import (
	"time"
)

// APIToken binds a bearer token to the organization it acts for.
type APIToken struct {
	Token          string    `json:"-"`
	OrganizationID string    `json:"organization_id"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

// Organization is the tenant that owns sessions and knowledge items.
type Organization struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// IsZero returns true if no organization context is known.
func (o Organization) IsZero() bool {
	return o.ID == ""
}
