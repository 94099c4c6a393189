package repositories

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cbodonnell/hokm/pkg/repositories/models"
	"github.com/cbodonnell/hokm/pkg/state"
)

// Repository is the durable store of room snapshots. It is not involved in
// delta bookkeeping: histories live only in memory.
type Repository interface {
	Close(ctx context.Context) error
	SaveRoom(ctx context.Context, room string, players []string, snapshot state.Snapshot) error
	LoadRoom(ctx context.Context, room string) (*models.Room, error)
	DeleteRoom(ctx context.Context, room string) error
	ListRooms(ctx context.Context) ([]string, error)
}

type NewRepositoryOptions struct {
	// URL selects the backend by scheme: memory://, sqlite://<path> or
	// postgresql://...
	URL string
	// MigrationsDir is applied to SQLite databases on open.
	MigrationsDir string
}

// NewRepository opens the repository named by opts.URL.
func NewRepository(ctx context.Context, opts NewRepositoryOptions) (Repository, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %v", err)
	}

	switch u.Scheme {
	case "memory":
		return NewMemoryRepository(), nil
	case "sqlite":
		path := u.Host + u.Path
		if path == "" {
			return nil, fmt.Errorf("sqlite connection string has no path")
		}
		return NewSQLiteRepository(ctx, path, opts.MigrationsDir)
	case "postgres", "postgresql":
		return NewPostgresRepository(ctx, u.String())
	default:
		return nil, fmt.Errorf("unknown database type %q", u.Scheme)
	}
}
