package backend

import (
	"context"
	"fmt"

	"lifedesk/internal/backend/memory"
	"lifedesk/internal/core"
	"lifedesk/internal/log"
	"lifedesk/internal/strapi"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Nop()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(_ context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case StrapiBackend:
		return f.createStrapiBackend(config), nil
	case MemoryBackend:
		return f.createMemoryBackend(config), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createStrapiBackend(config Config) *BackendResult {
	client := strapi.New(config.BaseURL, config.HTTPTimeout, f.logger,
		strapi.WithTokenSource(strapi.StaticToken(config.APIToken)))

	f.logger.Info("Initialized strapi backend",
		"base_url", config.BaseURL,
		"service_token", config.APIToken != "")

	return &BackendResult{
		Provider: &strapiProvider{client: client},
	}
}

func (f *DefaultFactory) createMemoryBackend(config Config) *BackendResult {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}
	store := memory.NewFromFiles(dataDir)

	f.logger.Info("Initialized memory backend", "data_directory", dataDir)

	return &BackendResult{
		Provider: NewMemoryProvider(store),
	}
}

// MemoryProvider serves every token from one in-process store. Records are
// still scoped by the user ids the stores pass in.
type MemoryProvider struct {
	*memory.Store
}

func NewMemoryProvider(store *memory.Store) *MemoryProvider {
	return &MemoryProvider{Store: store}
}

func (p *MemoryProvider) ForToken(string) Backend {
	return p.Store
}

// strapiProvider binds the shared client to a caller's token.
type strapiProvider struct {
	client *strapi.Client
}

func (p *strapiProvider) ForToken(token string) Backend {
	if token == "" {
		return strapi.NewRepository(p.client)
	}
	return strapi.NewRepository(p.client.WithToken(token))
}

func (p *strapiProvider) Login(ctx context.Context, identifier, password string) (core.AuthResult, error) {
	return p.client.Login(ctx, identifier, password)
}

func (p *strapiProvider) CurrentUser(ctx context.Context, token string) (core.User, error) {
	return p.client.WithToken(token).Me(ctx)
}
