// Manages server configuration stored in server_config.json.

package storage

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// ServerConfigFile is the name of the configuration file in the data directory.
const ServerConfigFile = "server_config.json"

// ServerConfig stores all server-wide configuration.
// Loaded from server_config.json, created with defaults if missing. The file
// may contain comments and trailing commas.
type ServerConfig struct {
	// JWTSecret is the secret used to sign JWT tokens.
	// Auto-generated if empty on first load.
	JWTSecret []byte `json:"jwt_secret"`

	// VAPID is the key pair used to sign web push messages.
	// Auto-generated if empty on first load.
	VAPID VAPIDConfig `json:"vapid"`

	// RateLimits defines rate limiting configuration.
	RateLimits RateLimits `json:"rate_limits"`

	// MaxRequestBodyBytes limits the size of any single HTTP request body.
	MaxRequestBodyBytes int64 `json:"max_request_body_bytes"`

	// LockTimeoutMs bounds how long a request waits for a collection's write
	// lock. 0 waits for as long as the request lives.
	LockTimeoutMs int `json:"lock_timeout_ms"`

	// History enables committing movies.json to a git repository in the data
	// directory after each change.
	History bool `json:"history"`
}

// VAPIDConfig holds the web push key pair.
type VAPIDConfig struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// RateLimits defines rate limiting configuration (requests per minute).
type RateLimits struct {
	// AuthRatePerMin limits login attempts per IP.
	// 0 means unlimited.
	AuthRatePerMin int `json:"auth_rate_per_min"`

	// WriteRatePerMin limits write operations per user.
	// 0 means unlimited.
	WriteRatePerMin int `json:"write_rate_per_min"`

	// SearchRatePerMin limits TMDB lookups per user.
	// 0 means unlimited.
	SearchRatePerMin int `json:"search_rate_per_min"`

	// ReadRatePerMin limits other read operations per user or IP.
	// 0 means unlimited.
	ReadRatePerMin int `json:"read_rate_per_min"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.AuthRatePerMin < 0 {
		return errors.New("auth_rate_per_min must be non-negative")
	}
	if r.WriteRatePerMin < 0 {
		return errors.New("write_rate_per_min must be non-negative")
	}
	if r.SearchRatePerMin < 0 {
		return errors.New("search_rate_per_min must be non-negative")
	}
	if r.ReadRatePerMin < 0 {
		return errors.New("read_rate_per_min must be non-negative")
	}
	return nil
}

// DefaultRateLimits returns the default rate limits.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		AuthRatePerMin:   5,    // 5 req/min for login
		WriteRatePerMin:  60,   // 60 req/min for writes
		SearchRatePerMin: 30,   // TMDB allows ~50 req/s globally; stay well below per user
		ReadRatePerMin:   6000, // 6k req/min for reads
	}
}

// DefaultServerConfig returns a configuration without secrets.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		RateLimits:          DefaultRateLimits(),
		MaxRequestBodyBytes: 1024 * 1024, // 1 MiB
		LockTimeoutMs:       10000,
	}
}

// Validate checks that the configuration is valid.
func (c *ServerConfig) Validate() error {
	if len(c.JWTSecret) == 0 {
		return errors.New("jwt_secret is required")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 bytes")
	}
	if (c.VAPID.PublicKey == "") != (c.VAPID.PrivateKey == "") {
		return errors.New("vapid public_key and private_key must both be set or both be empty")
	}
	if c.MaxRequestBodyBytes < 0 {
		return errors.New("max_request_body_bytes must be non-negative")
	}
	if c.LockTimeoutMs < 0 {
		return errors.New("lock_timeout_ms must be non-negative")
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	return nil
}

// LoadServerConfig loads configuration from dataDir/server_config.json.
// Creates the file with defaults if it doesn't exist.
// Auto-generates JWTSecret and the VAPID key pair if empty.
func LoadServerConfig(dataDir string) (*ServerConfig, error) {
	path := filepath.Join(dataDir, ServerConfigFile)

	cfg := DefaultServerConfig()

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir, not user input
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", ServerConfigFile, err)
		}
		// File doesn't exist, will create with defaults
	} else {
		std, serr := hujson.Standardize(data)
		if serr != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", ServerConfigFile, serr)
		}
		if serr := json.Unmarshal(std, &cfg); serr != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", ServerConfigFile, serr)
		}
	}

	modified := false
	if len(cfg.JWTSecret) == 0 {
		cfg.JWTSecret = make([]byte, 32)
		if _, err := rand.Read(cfg.JWTSecret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		modified = true
	}
	if cfg.VAPID.PublicKey == "" && cfg.VAPID.PrivateKey == "" {
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			return nil, fmt.Errorf("failed to generate VAPID keys: %w", err)
		}
		cfg.VAPID = VAPIDConfig{PublicKey: pub, PrivateKey: priv}
		modified = true
	}

	if modified || errors.Is(err, os.ErrNotExist) {
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ServerConfigFile, err)
	}
	return &cfg, nil
}

// Save saves configuration to dataDir/server_config.json.
func (c *ServerConfig) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')
	// New files get 0o600 from the temporary file; existing modes are kept.
	if err := atomic.WriteFile(filepath.Join(dataDir, ServerConfigFile), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", ServerConfigFile, err)
	}
	return nil
}
