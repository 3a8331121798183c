package entities

import (
	"fmt"
	"time"
)

// Connector identifiers
const (
	ConnectorCheckmarxSAST = "checkmarx_sast"
	ConnectorQualysWAS     = "qualys_was"
)

// Profile defaults
const (
	DefaultGrantType     = "password"
	DefaultScope         = "access_control_api sast_api"
	DefaultKennaHost     = "api.kennasecurity.com"
	DefaultKennaRetries  = 3
	DefaultQualysConsole = "qualysapi.qg3.apps.qualys.com"
	DefaultPageSize      = 100
	DefaultPollDelay     = 10 * time.Second
	DefaultPollMaxDelay  = 2 * time.Minute
	DefaultPollMaxWait   = 10 * time.Minute
	DefaultPollAttempts  = 10
	DefaultEventSubject  = "kdibridge.runs"
	DefaultDefinitionTTL = 24 * time.Hour
	DefaultOutputDirRoot = "output"
)

// Profile is the full configuration of one connector run
type Profile struct {
	Name      string
	Connector string
	Vendor    VendorSettings
	Kenna     KennaSettings
	OutputDir string
	PageSize  int
	Poll      PollSettings
	Signing   SigningSettings
	Events    EventSettings
	Cache     CacheSettings
}

// VendorSettings holds the scanner console address and credentials
type VendorSettings struct {
	Console      string // hostname, optionally with scheme
	Port         int
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
	GrantType    string
	Scope        string
}

// KennaSettings addresses the downstream ingestion service
type KennaSettings struct {
	APIKey      string
	Host        string
	ConnectorID string
	Retries     int
}

// UploadEnabled reports whether batches are sent to the ingestion service
func (k KennaSettings) UploadEnabled() bool {
	return k.APIKey != "" && k.ConnectorID != ""
}

// PollSettings bounds asynchronous report polling
type PollSettings struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxWait      time.Duration
	MaxAttempts  int
}

// SigningSettings enables OpenPGP detached signatures of emitted batches
type SigningSettings struct {
	KeyPath    string
	Passphrase string
}

// EventSettings enables run outcome events
type EventSettings struct {
	NatsURL string
	Subject string
}

// CacheSettings enables the knowledge-base definition cache
type CacheSettings struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// ApplyDefaults fills every unset optional setting
func (p *Profile) ApplyDefaults() {
	if p.Connector == ConnectorCheckmarxSAST {
		if p.Vendor.GrantType == "" {
			p.Vendor.GrantType = DefaultGrantType
		}
		if p.Vendor.Scope == "" {
			p.Vendor.Scope = DefaultScope
		}
	}
	if p.Connector == ConnectorQualysWAS && p.Vendor.Console == "" {
		p.Vendor.Console = DefaultQualysConsole
	}
	if p.Kenna.Host == "" {
		p.Kenna.Host = DefaultKennaHost
	}
	if p.Kenna.Retries <= 0 {
		p.Kenna.Retries = DefaultKennaRetries
	}
	if p.OutputDir == "" {
		p.OutputDir = DefaultOutputDirRoot + "/" + p.Connector
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.Poll.InitialDelay <= 0 {
		p.Poll.InitialDelay = DefaultPollDelay
	}
	if p.Poll.MaxDelay <= 0 {
		p.Poll.MaxDelay = DefaultPollMaxDelay
	}
	if p.Poll.MaxWait <= 0 {
		p.Poll.MaxWait = DefaultPollMaxWait
	}
	if p.Poll.MaxAttempts <= 0 {
		p.Poll.MaxAttempts = DefaultPollAttempts
	}
	if p.Events.NatsURL != "" && p.Events.Subject == "" {
		p.Events.Subject = DefaultEventSubject
	}
	if p.Cache.RedisAddr != "" && p.Cache.TTL <= 0 {
		p.Cache.TTL = DefaultDefinitionTTL
	}
}

// Validate checks that every required setting is present
func (p *Profile) Validate() error {
	switch p.Connector {
	case ConnectorCheckmarxSAST:
		required := []struct{ name, value string }{
			{"console", p.Vendor.Console},
			{"username", p.Vendor.Username},
			{"password", p.Vendor.Password},
			{"client_id", p.Vendor.ClientID},
			{"client_secret", p.Vendor.ClientSecret},
		}
		for _, r := range required {
			if r.value == "" {
				return fmt.Errorf("%s is required", r.name)
			}
		}
		if p.Vendor.GrantType != "" && p.Vendor.GrantType != DefaultGrantType {
			return fmt.Errorf("unsupported grant_type %q (only %q)", p.Vendor.GrantType, DefaultGrantType)
		}
	case ConnectorQualysWAS:
		if p.Vendor.Username == "" {
			return fmt.Errorf("username is required")
		}
		if p.Vendor.Password == "" {
			return fmt.Errorf("password is required")
		}
	case "":
		return fmt.Errorf("connector is required")
	default:
		return fmt.Errorf("unknown connector %q", p.Connector)
	}

	if p.Vendor.Port < 0 || p.Vendor.Port > 65535 {
		return fmt.Errorf("port %d out of range", p.Vendor.Port)
	}
	if p.Kenna.ConnectorID != "" && p.Kenna.APIKey == "" {
		return fmt.Errorf("kenna api_key is required when connector_id is set")
	}
	return nil
}
