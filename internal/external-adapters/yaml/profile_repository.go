package yaml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces"
)

// ProfileRepository implements repositories.ProfileRepository using YAML files
type ProfileRepository struct {
	profilesDir string
	parser      *ProfileParser
	logger      interfaces.Logger
}

// NewProfileRepository creates a new YAML-based profile repository
func NewProfileRepository(profilesDir string, logger interfaces.Logger) *ProfileRepository {
	return &ProfileRepository{
		profilesDir: profilesDir,
		parser:      NewProfileParser(),
		logger:      interfaces.OrNoOp(logger),
	}
}

// GetProfile retrieves a connector profile by name
func (r *ProfileRepository) GetProfile(_ context.Context, name string) (*entities.Profile, error) {
	for _, ext := range []string{".yml", ".yaml"} {
		filePath := filepath.Join(r.profilesDir, name+ext)
		if _, err := os.Stat(filePath); err == nil {
			return r.parser.ParseFile(filePath)
		}
	}
	return nil, fmt.Errorf("profile not found: %s", name)
}

// ListProfiles returns all available connector profiles, sorted by name
func (r *ProfileRepository) ListProfiles(_ context.Context) ([]*entities.Profile, error) {
	entries, err := os.ReadDir(r.profilesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles directory: %w", err)
	}

	profiles := make([]*entities.Profile, 0)
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}

		filePath := filepath.Join(r.profilesDir, entry.Name())
		profile, err := r.parser.ParseFile(filePath)
		if err != nil {
			// Keep going so one broken profile does not hide the others
			r.logger.Warn("Skipping unparsable profile",
				interfaces.F("file", entry.Name()),
				interfaces.F("error", err))
			continue
		}

		profiles = append(profiles, profile)
	}

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// GetProfilesByConnector returns profiles configured for one connector
func (r *ProfileRepository) GetProfilesByConnector(ctx context.Context, connector string) ([]*entities.Profile, error) {
	all, err := r.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*entities.Profile, 0)
	for _, p := range all {
		if p.Connector == connector {
			filtered = append(filtered, p)
		}
	}

	return filtered, nil
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml")
}
