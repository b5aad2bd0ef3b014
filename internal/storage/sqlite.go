package storage

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shohag/webhookrouter/internal/models"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time REAL NOT NULL,
			channel TEXT NOT NULL,
			content TEXT NOT NULL,
			meta TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS channels (
			channel TEXT PRIMARY KEY,
			handler TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_channel_time ON messages(channel, time DESC, id DESC)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- Channels ---

func (s *SQLiteStorage) GetChannels(ctx context.Context) ([]models.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel, handler FROM channels`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(&ch.Channel, &ch.Handler); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (s *SQLiteStorage) UpsertChannel(ctx context.Context, ch models.Channel) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (channel, handler) VALUES (?, ?)
		 ON CONFLICT(channel) DO UPDATE SET handler = excluded.handler`,
		ch.Channel, ch.Handler,
	)
	return err
}

func (s *SQLiteStorage) DeleteChannel(ctx context.Context, channel string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE channel = ?`, channel)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// --- Messages ---

func (s *SQLiteStorage) InsertMessage(ctx context.Context, rec models.MessageRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (time, channel, content, meta) VALUES (?, ?, ?, ?)`,
		rec.Time, rec.Channel, rec.Content, rec.Meta,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStorage) ListMessages(ctx context.Context, channel string, limit int) ([]models.MessageRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, time, channel, content, meta FROM messages WHERE channel = ? ORDER BY time DESC, id DESC LIMIT ?`,
		channel, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.MessageRecord
	for rows.Next() {
		var rec models.MessageRecord
		if err := rows.Scan(&rec.ID, &rec.Time, &rec.Channel, &rec.Content, &rec.Meta); err != nil {
			return nil, err
		}
		msgs = append(msgs, rec)
	}
	return msgs, rows.Err()
}
