// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
)

// Repository defines the interface for persisting hub sessions and knowledge.
type Repository interface {
	// GetToken resolves a bearer token. Returns nil if the token is unknown.
	GetToken(ctx context.Context, token string) (*domain.APIToken, error)

	// UpsertToken creates or updates a bearer token binding.
	UpsertToken(ctx context.Context, token *domain.APIToken) error

	// ListSessions returns an organization's sessions, most recently updated first.
	ListSessions(ctx context.Context, organizationID string) ([]*domain.Session, error)

	// GetSession retrieves one session. Returns nil if it does not exist
	// or belongs to another organization.
	GetSession(ctx context.Context, organizationID, sessionID string) (*domain.Session, error)

	// UpsertSession creates or updates a session and its messages.
	UpsertSession(ctx context.Context, session *domain.Session) error

	// AddKnowledgeItem stores a searchable item.
	AddKnowledgeItem(ctx context.Context, item *domain.KnowledgeItem) error

	// ListKnowledgeItems returns an organization's items. An empty category
	// returns items from every category.
	ListKnowledgeItems(ctx context.Context, organizationID, category string) ([]*domain.KnowledgeItem, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
