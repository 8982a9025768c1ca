package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	BackendStrapi = "strapi"
	BackendMemory = "memory"

	LocalStoreSQLite = "sqlite"
	LocalStoreMemory = "memory"
)

type Config struct {
	// HTTP Server
	Port        string
	LogLevel    string
	Environment string

	// Remote content API
	DataBackend    string
	StrapiURL      string
	StrapiAPIToken string
	HTTPTimeout    time.Duration

	// Local key-value store
	LocalStore  string
	LocalDBPath string

	// Calendar used for "today"
	DayOffsetHours int

	// Route guard
	ProtectedRoutes []string
	AuthRoutes      []string
	LoginPath       string
	HomePath        string

	// Per-token sessions
	SessionCacheSize int
	SessionTTL       time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	AMQPPrefetch int

	// Stats worker
	SyncInterval  time.Duration
	SyncBatchSize int

	// Google Sheets export
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleOAuthClientFile string
	GoogleOAuthTokenFile  string
	GoogleOAuthClientJSON string
	GoogleOAuthTokenJSON  string
}

func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "8081"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Environment: getEnv("ENV", "development"),

		DataBackend:    getEnv("DATA_BACKEND", BackendStrapi),
		StrapiURL:      strings.TrimRight(getEnv("STRAPI_URL", "http://localhost:1337/api"), "/"),
		StrapiAPIToken: getEnv("STRAPI_API_TOKEN", ""),
		HTTPTimeout:    getEnvDuration("HTTP_TIMEOUT", 15*time.Second),

		LocalStore:  getEnv("LOCAL_STORE", LocalStoreSQLite),
		LocalDBPath: getEnv("LOCAL_DB_PATH", "./data/lifedesk.db"),

		DayOffsetHours: getEnvInt("DAY_OFFSET_HOURS", 9),

		ProtectedRoutes: getEnvList("PROTECTED_ROUTES", []string{
			"/", "/profile", "/flashcard", "/favorites", "/history",
			"/dashboard", "/transactions", "/statistics",
		}),
		AuthRoutes: getEnvList("AUTH_ROUTES", []string{"/login", "/register"}),
		LoginPath:  getEnv("LOGIN_PATH", "/login"),
		HomePath:   getEnv("HOME_PATH", "/"),

		SessionCacheSize: getEnvInt("SESSION_CACHE_SIZE", 500),
		SessionTTL:       getEnvDuration("SESSION_TTL", 30*time.Minute),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "lifedesk"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "transaction_changes"),
		AMQPPrefetch: getEnvInt("AMQP_PREFETCH", 10),

		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 5*time.Minute),
		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 10),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:       getEnv("GOOGLE_SHEET_NAME", ""),
		GoogleOAuthClientFile: getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:  getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		GoogleOAuthClientJSON: getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthTokenJSON:  getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),
	}

	return cfg
}

// IsProduction reports whether cookies must be marked Secure.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// SheetsEnabled reports whether month exports to Google Sheets are configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// AMQPEnabled reports whether change events are published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case BackendStrapi:
		if c.StrapiURL == "" {
			errors = append(errors, "STRAPI_URL cannot be empty when using strapi backend")
		} else if u, err := url.Parse(c.StrapiURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid STRAPI_URL '%s': %v", c.StrapiURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid STRAPI_URL scheme '%s': must be 'http' or 'https'", u.Scheme))
		}
	case BackendMemory:
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [%s %s]", c.DataBackend, BackendStrapi, BackendMemory))
	}

	if c.HTTPTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at least 1 second", c.HTTPTimeout))
	} else if c.HTTPTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at most 5 minutes", c.HTTPTimeout))
	}

	switch c.LocalStore {
	case LocalStoreSQLite:
		if c.LocalDBPath == "" {
			errors = append(errors, "local database path cannot be empty when using sqlite local store")
		} else {
			dir := filepath.Dir(c.LocalDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create local database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case LocalStoreMemory:
	default:
		errors = append(errors, fmt.Sprintf("invalid local store '%s': must be one of [%s %s]", c.LocalStore, LocalStoreSQLite, LocalStoreMemory))
	}

	if c.DayOffsetHours < -12 || c.DayOffsetHours > 14 {
		errors = append(errors, fmt.Sprintf("invalid day offset %d: must be between -12 and 14 hours", c.DayOffsetHours))
	}

	routes := []string{c.LoginPath, c.HomePath}
	routes = append(routes, c.ProtectedRoutes...)
	routes = append(routes, c.AuthRoutes...)
	for _, p := range routes {
		if !strings.HasPrefix(p, "/") {
			errors = append(errors, fmt.Sprintf("invalid route '%s': must start with '/'", p))
		}
	}
	for _, p := range c.ProtectedRoutes {
		if p == c.LoginPath {
			errors = append(errors, fmt.Sprintf("login path '%s' cannot be a protected route", p))
		}
	}

	if c.SessionCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid session cache size %d: must be at least 1", c.SessionCacheSize))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPPrefetch < 1 || c.AMQPPrefetch > 1000 {
			errors = append(errors, fmt.Sprintf("invalid AMQP prefetch %d: must be between 1 and 1000", c.AMQPPrefetch))
		}
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	}
	if c.SyncBatchSize < 1 || c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be between 1 and 1000", c.SyncBatchSize))
	}

	if c.SheetsEnabled() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
		}

		hasClientFile := c.GoogleOAuthClientFile != ""
		if !hasClientFile && c.GoogleOAuthClientJSON == "" {
			errors = append(errors, "either GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON must be provided for sheets export")
		}
		hasTokenFile := c.GoogleOAuthTokenFile != ""
		if !hasTokenFile && c.GoogleOAuthTokenJSON == "" {
			errors = append(errors, "either GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_OAUTH_TOKEN_JSON must be provided for sheets export")
		}
		if hasClientFile {
			if _, err := os.Stat(c.GoogleOAuthClientFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth client file does not exist: %s", c.GoogleOAuthClientFile))
			}
		}
		if hasTokenFile {
			if _, err := os.Stat(c.GoogleOAuthTokenFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth token file does not exist: %s", c.GoogleOAuthTokenFile))
			}
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
