package backend

import (
	"fmt"
	"net/url"
	"time"

	"lifedesk/internal/config"
)

// BackendType represents the type of backend
type BackendType string

const (
	StrapiBackend BackendType = "strapi"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case StrapiBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Strapi specific
	BaseURL     string
	APIToken    string
	HTTPTimeout time.Duration

	// Memory specific: directory holding seed_words.txt
	DataDirectory string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:          backendType,
		BaseURL:       appConfig.StrapiURL,
		APIToken:      appConfig.StrapiAPIToken,
		HTTPTimeout:   appConfig.HTTPTimeout,
		DataDirectory: "data",
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	if c.Type == StrapiBackend {
		if c.BaseURL == "" {
			return fmt.Errorf("base URL is required for strapi backend")
		}
		if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
			return fmt.Errorf("invalid base URL %q: %w", c.BaseURL, err)
		}
		if c.HTTPTimeout <= 0 {
			return fmt.Errorf("HTTP timeout must be positive for strapi backend")
		}
	}

	return nil
}
