package account

import (
	"context"
	"fmt"
	"strings"

	"sessionkeeper-go/internal/config"
)

// NewRegistry builds the registry selected by cfg.Accounts.Backend.
func NewRegistry(ctx context.Context, cfg *config.Config) (Registry, error) {
	switch strings.ToLower(cfg.Accounts.Backend) {
	case "", "file":
		return NewFileRegistry(cfg.Accounts.File, cfg.Enterprise), nil
	case "postgres", "postgresql":
		return NewPostgresRegistry(ctx, cfg.Accounts.PostgresDSN)
	case "mongodb", "mongo":
		return NewMongoRegistry(ctx, cfg.Accounts.Mongo.URI, cfg.Accounts.Mongo.Database)
	}
	return nil, fmt.Errorf("unknown accounts backend %q", cfg.Accounts.Backend)
}
