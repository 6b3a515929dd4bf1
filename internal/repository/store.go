package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iconidentify/vidshelf/internal/config"
)

// OpenStore opens the catalog backend selected by cfg and bootstraps its
// indexes or schema.
func OpenStore(ctx context.Context, cfg config.CatalogConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendMongo:
		return OpenMongoStore(ctx, MongoConfig{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
			Timeout:  cfg.Timeout,
		})
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		return OpenSQLiteStore(ctx, cfg.SQLitePath)
	}
	return nil, fmt.Errorf("unknown catalog backend %q", cfg.Backend)
}
