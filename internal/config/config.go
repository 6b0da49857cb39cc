// Package config holds environment-driven settings for the norman-mcp server.
//
// All settings come from NORMAN_* environment variables so the server can be
// configured identically as a local stdio process or a deployed HTTP service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment selects which Norman deployment the server talks to.
const (
	EnvironmentProduction = "production"
	EnvironmentSandbox    = "sandbox"
)

// Base URLs for the Norman API by environment.
const (
	ProductionBaseURL = "https://api.norman.finance/"
	SandboxBaseURL    = "https://sandbox.norman.finance/"
)

// DefaultAPITimeout is the default timeout for upstream API requests.
// Norman report generation endpoints can be slow, hence the generous default.
const DefaultAPITimeout = 200 * time.Second

// Config holds the runtime configuration for the server.
type Config struct {
	// Email is the Norman account email used for single-tenant (stdio) mode.
	Email string

	// Password is the Norman account password used for single-tenant (stdio) mode.
	// Never logged.
	Password string

	// Environment is either "production" or "sandbox".
	Environment string

	// APITimeout bounds every upstream HTTP request.
	APITimeout time.Duration

	// ServerHost and ServerPort describe the local listen address for the
	// HTTP transport.
	ServerHost string
	ServerPort int

	// PublicURL is the externally reachable base URL of this server,
	// used in OAuth metadata and redirect targets.
	PublicURL string
}

// FromEnv builds a Config from NORMAN_* environment variables.
func FromEnv() *Config {
	return &Config{
		Email:       os.Getenv("NORMAN_EMAIL"),
		Password:    os.Getenv("NORMAN_PASSWORD"),
		Environment: getEnvOrDefault("NORMAN_ENVIRONMENT", EnvironmentProduction),
		APITimeout:  getEnvDurationSeconds("NORMAN_API_TIMEOUT", DefaultAPITimeout),
		ServerHost:  getEnvOrDefault("NORMAN_MCP_HOST", "0.0.0.0"),
		ServerPort:  getEnvIntOrDefault("NORMAN_MCP_PORT", 3001),
		PublicURL:   os.Getenv("NORMAN_MCP_PUBLIC_URL"),
	}
}

// APIBaseURL returns the Norman API base URL for the configured environment.
func (c *Config) APIBaseURL() string {
	if strings.EqualFold(c.Environment, EnvironmentProduction) {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

// HasCredentials reports whether single-tenant credentials are configured.
func (c *Config) HasCredentials() bool {
	return c.Email != "" && c.Password != ""
}

// ValidateForStdio checks that everything required for the stdio transport
// is present. The stdio transport has no login flow, so credentials must
// come from the environment.
func (c *Config) ValidateForStdio() error {
	if !c.HasCredentials() {
		return fmt.Errorf("stdio transport requires NORMAN_EMAIL and NORMAN_PASSWORD to be set")
	}
	return nil
}

// Username derives the Norman login username from the account email.
// Norman accepts the local part of the email as the username.
func Username(email string) string {
	if idx := strings.Index(email, "@"); idx > 0 {
		return email[:idx]
	}
	return email
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDurationSeconds reads an integer number of seconds from the
// environment. The upstream settings express timeouts in seconds.
func getEnvDurationSeconds(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Second
		}
	}
	return defaultValue
}
