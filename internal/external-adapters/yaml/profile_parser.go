// Package yaml provides YAML-based connector profile parsing and repository implementations.
package yaml

import (
	"fmt"
	"os"
	"time"

	"github.com/ochairo/kdibridge/internal/domain/entities"
	"gopkg.in/yaml.v3"
)

// yamlProfile represents the raw YAML structure
type yamlProfile struct {
	Name      string      `yaml:"name"`
	Connector string      `yaml:"connector"`
	Vendor    yamlVendor  `yaml:"vendor"`
	Kenna     yamlKenna   `yaml:"kenna"`
	OutputDir string      `yaml:"output_dir"`
	PageSize  int         `yaml:"page_size"`
	Poll      yamlPoll    `yaml:"poll"`
	Signing   yamlSigning `yaml:"signing"`
	Events    yamlEvents  `yaml:"events"`
	Cache     yamlCache   `yaml:"cache"`
}

type yamlVendor struct {
	Console      string `yaml:"console"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	GrantType    string `yaml:"grant_type"`
	Scope        string `yaml:"scope"`
}

type yamlKenna struct {
	APIKey      string `yaml:"api_key"`
	Host        string `yaml:"host"`
	ConnectorID string `yaml:"connector_id"`
	Retries     int    `yaml:"retries"`
}

type yamlPoll struct {
	InitialDelay string `yaml:"initial_delay"`
	MaxDelay     string `yaml:"max_delay"`
	MaxWait      string `yaml:"max_wait"`
	MaxAttempts  int    `yaml:"max_attempts"`
}

type yamlSigning struct {
	KeyPath    string `yaml:"key_path"`
	Passphrase string `yaml:"passphrase"`
}

type yamlEvents struct {
	NatsURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

type yamlCache struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTL           string `yaml:"ttl"`
}

// ProfileParser parses YAML connector profiles
type ProfileParser struct{}

// NewProfileParser creates a new YAML parser
func NewProfileParser() *ProfileParser {
	return &ProfileParser{}
}

// ParseFile parses a YAML profile file into a Profile entity
func (p *ProfileParser) ParseFile(filePath string) (*entities.Profile, error) {
	//nolint:gosec // G304: filePath is a profile path from the repository
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	return p.Parse(data)
}

// Parse parses YAML bytes into a Profile entity. Defaults are not applied;
// callers merge environment and flag overrides first.
func (p *ProfileParser) Parse(data []byte) (*entities.Profile, error) {
	var raw yamlProfile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if raw.Name == "" {
		return nil, fmt.Errorf("profile must have a name")
	}
	if raw.Connector == "" {
		return nil, fmt.Errorf("profile %s must have a connector", raw.Name)
	}

	poll, err := convertPoll(raw.Poll)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", raw.Name, err)
	}
	ttl, err := parseDuration("cache.ttl", raw.Cache.TTL)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", raw.Name, err)
	}

	return &entities.Profile{
		Name:      raw.Name,
		Connector: raw.Connector,
		Vendor: entities.VendorSettings{
			Console:      raw.Vendor.Console,
			Port:         raw.Vendor.Port,
			Username:     raw.Vendor.Username,
			Password:     raw.Vendor.Password,
			ClientID:     raw.Vendor.ClientID,
			ClientSecret: raw.Vendor.ClientSecret,
			GrantType:    raw.Vendor.GrantType,
			Scope:        raw.Vendor.Scope,
		},
		Kenna: entities.KennaSettings{
			APIKey:      raw.Kenna.APIKey,
			Host:        raw.Kenna.Host,
			ConnectorID: raw.Kenna.ConnectorID,
			Retries:     raw.Kenna.Retries,
		},
		OutputDir: raw.OutputDir,
		PageSize:  raw.PageSize,
		Poll:      poll,
		Signing: entities.SigningSettings{
			KeyPath:    raw.Signing.KeyPath,
			Passphrase: raw.Signing.Passphrase,
		},
		Events: entities.EventSettings{
			NatsURL: raw.Events.NatsURL,
			Subject: raw.Events.Subject,
		},
		Cache: entities.CacheSettings{
			RedisAddr:     raw.Cache.RedisAddr,
			RedisPassword: raw.Cache.RedisPassword,
			RedisDB:       raw.Cache.RedisDB,
			TTL:           ttl,
		},
	}, nil
}

func convertPoll(yp yamlPoll) (entities.PollSettings, error) {
	initial, err := parseDuration("poll.initial_delay", yp.InitialDelay)
	if err != nil {
		return entities.PollSettings{}, err
	}
	maxDelay, err := parseDuration("poll.max_delay", yp.MaxDelay)
	if err != nil {
		return entities.PollSettings{}, err
	}
	maxWait, err := parseDuration("poll.max_wait", yp.MaxWait)
	if err != nil {
		return entities.PollSettings{}, err
	}

	return entities.PollSettings{
		InitialDelay: initial,
		MaxDelay:     maxDelay,
		MaxWait:      maxWait,
		MaxAttempts:  yp.MaxAttempts,
	}, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", field, value)
	}
	return d, nil
}
