package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cbodonnell/hokm/pkg/log"
	"github.com/cbodonnell/hokm/pkg/repositories/models"
	"github.com/cbodonnell/hokm/pkg/state"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to connStr. The schema is expected to exist.
// The caller is responsible for calling Close() on the repository.
func NewPostgresRepository(ctx context.Context, connStr string) (Repository, error) {
	pool, err := connectDb(ctx, connStr)
	if err != nil {
		return nil, err
	}
	return &PostgresRepository{
		pool: pool,
	}, nil
}

func connectDb(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	var username string
	var database string
	err = pool.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to query database: %v", err)
	}

	log.Info("Connected to %s as %s", database, username)
	return pool, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) SaveRoom(ctx context.Context, room string, players []string, snapshot state.Snapshot) error {
	b, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	if players == nil {
		players = []string{}
	}

	q := `
	INSERT INTO rooms (room_id, players, snapshot, created_at) VALUES ($1, $2, $3, $4)
	ON CONFLICT (room_id) DO UPDATE SET players = $2, snapshot = $3, updated_at = $4;
	`
	_, err = r.pool.Exec(ctx, q, room, players, string(b), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save room: %v", err)
	}
	return nil
}

func (r *PostgresRepository) LoadRoom(ctx context.Context, room string) (*models.Room, error) {
	q := `
	SELECT players, snapshot, COALESCE(updated_at, created_at) FROM rooms WHERE room_id = $1;
	`
	var players []string
	var snapshot []byte
	var updatedAt int64
	if err := r.pool.QueryRow(ctx, q, room).Scan(&players, &snapshot, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{Room: room}
		}
		return nil, fmt.Errorf("failed to scan room: %v", err)
	}

	s, err := decodeSnapshot(snapshot)
	if err != nil {
		return nil, err
	}
	return &models.Room{
		ID:        room,
		Players:   players,
		Snapshot:  s,
		UpdatedAt: updatedAt,
	}, nil
}

func (r *PostgresRepository) DeleteRoom(ctx context.Context, room string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM rooms WHERE room_id = $1", room); err != nil {
		return fmt.Errorf("failed to delete room: %v", err)
	}
	return nil
}

func (r *PostgresRepository) ListRooms(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, "SELECT room_id FROM rooms ORDER BY room_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %v", err)
	}
	rooms, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan rooms: %v", err)
	}
	return rooms, nil
}
