package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/vidshelf/internal/catalog"
	"github.com/iconidentify/vidshelf/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS uploaders (
	doc_id      TEXT PRIMARY KEY,
	extractor   TEXT NOT NULL,
	uploader_id TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL,
	tags        TEXT NOT NULL DEFAULT '[]',
	categories  TEXT NOT NULL DEFAULT '[]',
	hashtags    TEXT NOT NULL DEFAULT '[]',
	UNIQUE (extractor, name)
);

CREATE TABLE IF NOT EXISTS videos (
	doc_id          TEXT PRIMARY KEY,
	extractor       TEXT NOT NULL,
	video_id        TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	uploader        TEXT NOT NULL DEFAULT '',
	upload_date     INTEGER NOT NULL DEFAULT 0,
	view_count      INTEGER NOT NULL DEFAULT 0,
	like_count      INTEGER NOT NULL DEFAULT 0,
	dislike_count   INTEGER NOT NULL DEFAULT 0,
	tags            TEXT NOT NULL DEFAULT '[]',
	categories      TEXT NOT NULL DEFAULT '[]',
	hashtags        TEXT NOT NULL DEFAULT '[]',
	uploader_doc_id TEXT NOT NULL DEFAULT '',
	UNIQUE (extractor, video_id)
);

CREATE INDEX IF NOT EXISTS videos_uploader_idx ON videos (extractor, uploader, upload_date DESC);
CREATE INDEX IF NOT EXISTS videos_upload_date_idx ON videos (upload_date DESC, doc_id);

CREATE TABLE IF NOT EXISTS statistics (
	access_key         TEXT PRIMARY KEY,
	view_video         TEXT,
	view_count         INTEGER NOT NULL DEFAULT 0,
	like_video         TEXT,
	like_count         INTEGER NOT NULL DEFAULT 0,
	dislike_video      TEXT,
	dislike_count      INTEGER NOT NULL DEFAULT 0,
	oldest_video       TEXT,
	oldest_upload_date INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS statistic_labels (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	access_key TEXT NOT NULL,
	kind       TEXT NOT NULL,
	label      TEXT NOT NULL,
	count      INTEGER NOT NULL,
	UNIQUE (access_key, kind, label)
);

CREATE TABLE IF NOT EXISTS statistic_members (
	access_key   TEXT NOT NULL,
	video_doc_id TEXT NOT NULL,
	PRIMARY KEY (access_key, video_doc_id)
);
`

// SQLiteStore is the embedded SQL backend. It keeps a single connection,
// so every statement is serialized and each Record runs as one
// transaction.
type SQLiteStore struct {
	db         *sql.DB
	videos     *SQLiteVideoRepository
	uploaders  *SQLiteUploaderRepository
	statistics *SQLiteStatisticRepository
}

// OpenSQLiteStore opens (creating if needed) the database at path and
// applies the schema. Use ":memory:" for a throwaway database.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	return &SQLiteStore{
		db:         db,
		videos:     &SQLiteVideoRepository{db: db},
		uploaders:  &SQLiteUploaderRepository{db: db},
		statistics: &SQLiteStatisticRepository{db: db},
	}, nil
}

// Videos returns the video repository.
func (s *SQLiteStore) Videos() VideoRepository { return s.videos }

// Uploaders returns the uploader repository.
func (s *SQLiteStore) Uploaders() UploaderRepository { return s.uploaders }

// Statistics returns the statistic repository.
func (s *SQLiteStore) Statistics() StatisticRepository { return s.statistics }

// Ping checks the database is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func encodeStrings(s []string) (string, error) {
	if s == nil {
		s = []string{}
	}
	b, err := json.Marshal(s)
	return string(b), err
}

func decodeStrings(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeTable(t domain.FrequencyTable) (string, error) {
	if t == nil {
		t = domain.FrequencyTable{}
	}
	b, err := json.Marshal(t)
	return string(b), err
}

func decodeTable(raw string) (domain.FrequencyTable, error) {
	var rows []domain.LabelCount
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &rows); err != nil {
			return nil, err
		}
	}
	return catalog.Rank(rows), nil
}
