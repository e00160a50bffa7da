// Package config loads the runtime configuration for spanner from the
// environment. Listen port and data directory are server-command flags and
// live outside this package.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/heyvard/helse-spanner/internal/util"
)

// EnvType distinguishes local development from production. It controls
// cookie attributes and whether the canned local person source is used.
type EnvType string

const (
	EnvLocal EnvType = "local"
	EnvProd  EnvType = "prod"
)

// ParseEnvType parses an environment name, rejecting anything it does not know.
func ParseEnvType(s string) (EnvType, error) {
	switch s {
	case "local", "":
		return EnvLocal, nil
	case "prod":
		return EnvProd, nil
	default:
		return "", fmt.Errorf("illegal environment %q (want local or prod)", s)
	}
}

// OIDC holds the authorization-server settings for the login flow and
// token refresh.
type OIDC struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// ExtraScopes are requested in addition to openid and offline_access,
	// e.g. the downstream API scope "<clientID>/.default".
	ExtraScopes []string
}

// Config is the full runtime configuration.
type Config struct {
	Env  EnvType
	OIDC OIDC

	// SpleisURL is the base URL of the downstream person-data provider.
	SpleisURL string

	// SessionLifetime is the hard ceiling on session validity, independent
	// of access-token expiry.
	SessionLifetime time.Duration

	// RefreshTimeout bounds a single refresh call to the authorization
	// server. RefreshRetries is the number of additional attempts after a
	// transient failure.
	RefreshTimeout time.Duration
	RefreshRetries int

	// MasterKey is the 32-byte root key that session-encryption and
	// audit-signing keys are derived from. Optional in local mode, where
	// sessions are kept in memory instead.
	MasterKey []byte
}

const (
	defaultSessionLifetime = time.Hour
	defaultRefreshTimeout  = 10 * time.Second
	defaultRefreshRetries  = 1
)

// Load reads configuration from the environment and validates it.
func Load() (Config, error) {
	env, err := ParseEnvType(os.Getenv("SPANNER_ENV"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Env: env,
		OIDC: OIDC{
			IssuerURL:    os.Getenv("AZURE_APP_ISSUER_URL"),
			ClientID:     os.Getenv("AZURE_APP_CLIENT_ID"),
			ClientSecret: os.Getenv("AZURE_APP_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("SPANNER_REDIRECT_URL"),
		},
		SpleisURL:       os.Getenv("SPLEIS_API_URL"),
		SessionLifetime: defaultSessionLifetime,
		RefreshTimeout:  defaultRefreshTimeout,
		RefreshRetries:  defaultRefreshRetries,
	}
	if scope := os.Getenv("SPLEIS_API_SCOPE"); scope != "" {
		cfg.OIDC.ExtraScopes = []string{scope}
	}

	if v := os.Getenv("SPANNER_SESSION_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("SPANNER_SESSION_LIFETIME: %w", err)
		}
		cfg.SessionLifetime = d
	}
	if v := os.Getenv("SPANNER_REFRESH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("SPANNER_REFRESH_TIMEOUT: %w", err)
		}
		cfg.RefreshTimeout = d
	}
	if v := os.Getenv("SPANNER_REFRESH_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("SPANNER_REFRESH_RETRIES: invalid value %q", v)
		}
		cfg.RefreshRetries = n
	}
	if v := os.Getenv("SPANNER_MASTER_KEY"); v != "" {
		key, err := util.HexDecode(v)
		if err != nil {
			return Config{}, fmt.Errorf("SPANNER_MASTER_KEY: not valid hex")
		}
		if len(key) != 32 {
			return Config{}, fmt.Errorf("SPANNER_MASTER_KEY: must be 32 bytes, got %d", len(key))
		}
		cfg.MasterKey = key
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Env == EnvLocal {
		// Local mode runs without an authorization server, a real
		// downstream, or an externally provided master key.
		return nil
	}
	required := map[string]string{
		"AZURE_APP_ISSUER_URL":    c.OIDC.IssuerURL,
		"AZURE_APP_CLIENT_ID":     c.OIDC.ClientID,
		"AZURE_APP_CLIENT_SECRET": c.OIDC.ClientSecret,
		"SPANNER_REDIRECT_URL":    c.OIDC.RedirectURL,
		"SPLEIS_API_URL":          c.SpleisURL,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("missing required environment variable %s", name)
		}
	}
	if len(c.MasterKey) == 0 {
		return fmt.Errorf("missing required environment variable SPANNER_MASTER_KEY")
	}
	return nil
}
