package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces"
	"github.com/ochairo/kdibridge/internal/domain/interfaces/repositories"
	"github.com/ochairo/kdibridge/internal/external-adapters/logrus"
	"github.com/ochairo/kdibridge/internal/external-adapters/yaml"
)

// envPrefix namespaces every environment override
const envPrefix = "KDIBRIDGE_"

// setting is one overridable profile field, reachable as --<flag> and
// KDIBRIDGE_<env>
type setting struct {
	flag  string
	env   string
	usage string
	apply func(p *entities.Profile, value string) error
}

func text(set func(p *entities.Profile, v string)) func(*entities.Profile, string) error {
	return func(p *entities.Profile, v string) error {
		set(p, v)
		return nil
	}
}

func number(name string, set func(p *entities.Profile, n int)) func(*entities.Profile, string) error {
	return func(p *entities.Profile, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be a number, got %q", name, v)
		}
		set(p, n)
		return nil
	}
}

func duration(name string, set func(p *entities.Profile, d time.Duration)) func(*entities.Profile, string) error {
	return func(p *entities.Profile, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s must be a duration, got %q", name, v)
		}
		set(p, d)
		return nil
	}
}

var settings = []setting{
	{"console", "CONSOLE", "Scanner console host, optionally with scheme",
		text(func(p *entities.Profile, v string) { p.Vendor.Console = v })},
	{"console-port", "CONSOLE_PORT", "Scanner console port",
		number("console-port", func(p *entities.Profile, n int) { p.Vendor.Port = n })},
	{"username", "USERNAME", "Scanner user",
		text(func(p *entities.Profile, v string) { p.Vendor.Username = v })},
	{"password", "PASSWORD", "Scanner password",
		text(func(p *entities.Profile, v string) { p.Vendor.Password = v })},
	{"client-id", "CLIENT_ID", "OAuth client id (checkmarx-sast)",
		text(func(p *entities.Profile, v string) { p.Vendor.ClientID = v })},
	{"client-secret", "CLIENT_SECRET", "OAuth client secret (checkmarx-sast)",
		text(func(p *entities.Profile, v string) { p.Vendor.ClientSecret = v })},
	{"grant-type", "GRANT_TYPE", "OAuth grant type (checkmarx-sast)",
		text(func(p *entities.Profile, v string) { p.Vendor.GrantType = v })},
	{"scope", "SCOPE", "OAuth scope (checkmarx-sast)",
		text(func(p *entities.Profile, v string) { p.Vendor.Scope = v })},
	{"kenna-api-key", "KENNA_API_KEY", "Kenna API key",
		text(func(p *entities.Profile, v string) { p.Kenna.APIKey = v })},
	{"kenna-api-host", "KENNA_API_HOST", "Kenna API host",
		text(func(p *entities.Profile, v string) { p.Kenna.Host = v })},
	{"kenna-connector-id", "KENNA_CONNECTOR_ID", "Kenna connector id; batches are only written locally without it",
		text(func(p *entities.Profile, v string) { p.Kenna.ConnectorID = v })},
	{"output-dir", "OUTPUT_DIR", "Directory for KDI batch files",
		text(func(p *entities.Profile, v string) { p.OutputDir = v })},
	{"page-size", "PAGE_SIZE", "Rows per page for paginated APIs",
		number("page-size", func(p *entities.Profile, n int) { p.PageSize = n })},
	{"poll-max-wait", "POLL_MAX_WAIT", "Longest wait for one report (e.g. 10m)",
		duration("poll-max-wait", func(p *entities.Profile, d time.Duration) { p.Poll.MaxWait = d })},
	{"signing-key", "SIGNING_KEY", "Armored OpenPGP private key used to sign batches",
		text(func(p *entities.Profile, v string) { p.Signing.KeyPath = v })},
	{"signing-passphrase", "SIGNING_PASSPHRASE", "Passphrase of the signing key",
		text(func(p *entities.Profile, v string) { p.Signing.Passphrase = v })},
	{"nats-url", "NATS_URL", "NATS server for run outcome events",
		text(func(p *entities.Profile, v string) { p.Events.NatsURL = v })},
	{"redis-addr", "REDIS_ADDR", "Redis address for the definition cache (qualys-was)",
		text(func(p *entities.Profile, v string) { p.Cache.RedisAddr = v })},
	{"redis-password", "REDIS_PASSWORD", "Redis password",
		text(func(p *entities.Profile, v string) { p.Cache.RedisPassword = v })},
}

// connectorFlags are the flags shared by every connector command
type connectorFlags struct {
	fs          *flag.FlagSet
	profile     *string
	profilesDir *string
	envFile     *string
	logLevel    *string
	logFormat   *string
}

func newConnectorFlags(name string) *connectorFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cf := &connectorFlags{
		fs:          fs,
		profile:     fs.String("profile", "", "Profile name to load from the profiles directory"),
		profilesDir: fs.String("profiles-dir", "profiles", "Path to profiles directory"),
		envFile:     fs.String("env-file", ".env", "Environment file loaded when present"),
		logLevel:    fs.String("log-level", "", "Log level (debug, info, warn, error); defaults to LOG_LEVEL or info"),
		logFormat:   fs.String("log-format", "text", "Log format (text or json)"),
	}
	for _, s := range settings {
		fs.String(s.flag, "", s.usage)
	}
	return cf
}

// loadProfile merges the profile file, the environment and the flags, in
// that order, for the given connector
func (cf *connectorFlags) loadProfile(ctx context.Context, connector string, logger interfaces.Logger) (*entities.Profile, error) {
	profile := &entities.Profile{Name: connector, Connector: connector}

	if *cf.profile != "" {
		var repo repositories.ProfileRepository = yaml.NewProfileRepository(*cf.profilesDir, logger)
		loaded, err := repo.GetProfile(ctx, *cf.profile)
		if err != nil {
			return nil, err
		}
		if loaded.Connector != connector {
			return nil, fmt.Errorf("profile %s is for connector %s, not %s", loaded.Name, loaded.Connector, connector)
		}
		profile = loaded
	}

	if err := loadEnvFile(*cf.envFile); err != nil {
		return nil, err
	}
	if err := applyEnv(profile, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := applyFlags(profile, cf.fs); err != nil {
		return nil, err
	}

	profile.ApplyDefaults()
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return profile, nil
}

// newLogger builds the logger from the flags, falling back to LOG_LEVEL
func (cf *connectorFlags) newLogger() (*logrus.Logger, error) {
	return newLogger(*cf.logLevel, *cf.logFormat)
}

func newLogger(level, format string) (*logrus.Logger, error) {
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}
	return logrus.New(os.Stderr, level, format)
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func applyEnv(p *entities.Profile, lookup func(string) (string, bool)) error {
	for _, s := range settings {
		v, ok := lookup(envPrefix + s.env)
		if !ok || v == "" {
			continue
		}
		if err := s.apply(p, v); err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, s.env, err)
		}
	}
	return nil
}

// applyFlags applies only the flags given on the command line
func applyFlags(p *entities.Profile, fs *flag.FlagSet) error {
	byFlag := make(map[string]setting, len(settings))
	for _, s := range settings {
		byFlag[s.flag] = s
	}

	var err error
	fs.Visit(func(f *flag.Flag) {
		s, ok := byFlag[f.Name]
		if !ok || err != nil {
			return
		}
		if applyErr := s.apply(p, f.Value.String()); applyErr != nil {
			err = fmt.Errorf("--%s: %w", f.Name, applyErr)
		}
	})
	return err
}
