// Package repositories defines interfaces for data access layers.
package repositories

import (
	"context"

	"github.com/ochairo/kdibridge/internal/domain/entities"
)

// ProfileRepository defines the interface for accessing connector profiles
type ProfileRepository interface {
	// GetProfile retrieves a connector profile by name
	GetProfile(ctx context.Context, name string) (*entities.Profile, error)

	// ListProfiles returns all available connector profiles
	ListProfiles(ctx context.Context) ([]*entities.Profile, error)

	// GetProfilesByConnector returns profiles configured for one connector
	GetProfilesByConnector(ctx context.Context, connector string) ([]*entities.Profile, error)
}
