package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cbodonnell/hokm/pkg/repositories/models"
	"github.com/cbodonnell/hokm/pkg/state"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens the database at path and applies every migration
// file in migrations in name order.
func NewSQLiteRepository(ctx context.Context, path string, migrations string) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	dir, err := os.ReadDir(migrations)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read migrations directory: %v", err)
	}
	sort.Slice(dir, func(i, j int) bool { return dir[i].Name() < dir[j].Name() })

	for _, entry := range dir {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}

		migrationPath := filepath.Join(migrations, entry.Name())
		migration, err := os.ReadFile(migrationPath)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to read migration %s: %v", migrationPath, err)
		}

		if _, err := db.ExecContext(ctx, string(migration)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute migration %s: %v", migrationPath, err)
		}
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) SaveRoom(ctx context.Context, room string, players []string, snapshot state.Snapshot) error {
	b, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	if players == nil {
		players = []string{}
	}
	p, err := json.Marshal(players)
	if err != nil {
		return fmt.Errorf("failed to encode players: %v", err)
	}

	q := `
	INSERT OR REPLACE INTO rooms (room_id, players, snapshot, updated_at)
	VALUES (?, ?, ?, ?);
	`
	if _, err := r.db.ExecContext(ctx, q, room, string(p), string(b), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to save room: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) LoadRoom(ctx context.Context, room string) (*models.Room, error) {
	q := `
	SELECT players, snapshot, updated_at FROM rooms WHERE room_id = ?;
	`
	var players, snapshot string
	var updatedAt int64
	if err := r.db.QueryRowContext(ctx, q, room).Scan(&players, &snapshot, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{Room: room}
		}
		return nil, fmt.Errorf("failed to scan room: %v", err)
	}

	out := &models.Room{ID: room, UpdatedAt: updatedAt}
	if err := json.Unmarshal([]byte(players), &out.Players); err != nil {
		return nil, fmt.Errorf("failed to decode players: %v", err)
	}
	s, err := decodeSnapshot([]byte(snapshot))
	if err != nil {
		return nil, err
	}
	out.Snapshot = s
	return out, nil
}

func (r *SQLiteRepository) DeleteRoom(ctx context.Context, room string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE room_id = ?;`, room); err != nil {
		return fmt.Errorf("failed to delete room: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) ListRooms(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT room_id FROM rooms ORDER BY room_id;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %v", err)
	}
	defer rows.Close()

	rooms := []string{}
	for rows.Next() {
		var room string
		if err := rows.Scan(&room); err != nil {
			return nil, fmt.Errorf("failed to scan room: %v", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
