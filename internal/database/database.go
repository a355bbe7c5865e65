package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

type User struct {
	ID             uuid.UUID `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
}

type CreateUserParams struct {
	Email          string
	HashedPassword string
}

type Video struct {
	ID           uuid.UUID `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ThumbnailURL *string   `json:"thumbnail_url"`
	VideoURL     *string   `json:"video_url"`
	CreateVideoParams
}

type CreateVideoParams struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	UserID      uuid.UUID `json:"user_id"`
}

// Client is the metadata store used by the API handlers. Two backends are
// provided: SQLite for single-node deployments and Postgres for shared ones.
type Client interface {
	CreateUser(params CreateUserParams) (User, error)
	GetUserByEmail(email string) (User, error)

	CreateVideo(params CreateVideoParams) (Video, error)
	GetVideo(id uuid.UUID) (Video, error)
	GetVideos(userID uuid.UUID) ([]Video, error)
	UpdateVideo(video Video) error
	DeleteVideo(id uuid.UUID) error

	Reset() error
	Close() error
}

// NewClient opens a store for the given driver ("sqlite3" or "postgres") and
// creates the schema if it does not exist yet.
func NewClient(driver, dsn string) (Client, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return newSQLiteClient(dsn)
	case "postgres":
		return newPostgresClient(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
