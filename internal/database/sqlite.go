package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type sqliteClient struct {
	db *sql.DB
}

var _ Client = (*sqliteClient)(nil)

func newSQLiteClient(pathToDB string) (*sqliteClient, error) {
	db, err := sql.Open("sqlite3", pathToDB)
	if err != nil {
		return nil, err
	}
	c := &sqliteClient{db: db}
	if err := c.autoMigrate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *sqliteClient) autoMigrate() error {
	userTable := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL
	);
	`
	if _, err := c.db.Exec(userTable); err != nil {
		return err
	}

	videoTable := `
	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		thumbnail_url TEXT,
		video_url TEXT,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE
	);
	`
	if _, err := c.db.Exec(videoTable); err != nil {
		return err
	}
	return nil
}

func (c *sqliteClient) CreateUser(params CreateUserParams) (User, error) {
	id := uuid.New()
	now := time.Now().UTC()
	_, err := c.db.Exec(
		"INSERT INTO users (id, created_at, updated_at, email, password) VALUES (?, ?, ?, ?, ?)",
		id.String(), now, now, params.Email, params.HashedPassword,
	)
	if err != nil {
		return User{}, err
	}
	return User{
		ID:             id,
		CreatedAt:      now,
		UpdatedAt:      now,
		Email:          params.Email,
		HashedPassword: params.HashedPassword,
	}, nil
}

func (c *sqliteClient) GetUserByEmail(email string) (User, error) {
	row := c.db.QueryRow(
		"SELECT id, created_at, updated_at, email, password FROM users WHERE email = ?",
		email,
	)
	return scanUser(row)
}

func (c *sqliteClient) CreateVideo(params CreateVideoParams) (Video, error) {
	id := uuid.New()
	now := time.Now().UTC()
	_, err := c.db.Exec(
		"INSERT INTO videos (id, created_at, updated_at, title, description, user_id) VALUES (?, ?, ?, ?, ?, ?)",
		id.String(), now, now, params.Title, params.Description, params.UserID.String(),
	)
	if err != nil {
		return Video{}, err
	}
	return c.GetVideo(id)
}

func (c *sqliteClient) GetVideo(id uuid.UUID) (Video, error) {
	row := c.db.QueryRow(
		"SELECT id, created_at, updated_at, title, description, thumbnail_url, video_url, user_id FROM videos WHERE id = ?",
		id.String(),
	)
	return scanVideo(row)
}

func (c *sqliteClient) GetVideos(userID uuid.UUID) ([]Video, error) {
	rows, err := c.db.Query(
		"SELECT id, created_at, updated_at, title, description, thumbnail_url, video_url, user_id FROM videos WHERE user_id = ? ORDER BY created_at DESC",
		userID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

func (c *sqliteClient) UpdateVideo(video Video) error {
	res, err := c.db.Exec(
		"UPDATE videos SET updated_at = ?, title = ?, description = ?, thumbnail_url = ?, video_url = ? WHERE id = ?",
		time.Now().UTC(), video.Title, video.Description, video.ThumbnailURL, video.VideoURL, video.ID.String(),
	)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (c *sqliteClient) DeleteVideo(id uuid.UUID) error {
	res, err := c.db.Exec("DELETE FROM videos WHERE id = ?", id.String())
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (c *sqliteClient) Reset() error {
	if _, err := c.db.Exec("DELETE FROM videos"); err != nil {
		return fmt.Errorf("couldn't delete videos: %w", err)
	}
	if _, err := c.db.Exec("DELETE FROM users"); err != nil {
		return fmt.Errorf("couldn't delete users: %w", err)
	}
	return nil
}

func (c *sqliteClient) Close() error {
	return c.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	var id string
	err := row.Scan(&id, &user.CreatedAt, &user.UpdatedAt, &user.Email, &user.HashedPassword)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	user.ID, err = uuid.Parse(id)
	return user, err
}

func scanVideo(row rowScanner) (Video, error) {
	var video Video
	var id, userID string
	var description sql.NullString
	err := row.Scan(&id, &video.CreatedAt, &video.UpdatedAt, &video.Title, &description,
		&video.ThumbnailURL, &video.VideoURL, &userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	if err != nil {
		return Video{}, err
	}
	video.Description = description.String
	if video.ID, err = uuid.Parse(id); err != nil {
		return Video{}, err
	}
	video.UserID, err = uuid.Parse(userID)
	return video, err
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
