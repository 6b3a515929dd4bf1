package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/iconidentify/vidshelf/internal/domain"
)

// SQLiteUploaderRepository implements UploaderRepository on SQLite.
type SQLiteUploaderRepository struct {
	db *sql.DB
}

// Get retrieves an uploader by extractor and name.
func (r *SQLiteUploaderRepository) Get(ctx context.Context, extractor, name string) (*domain.Uploader, error) {
	var (
		u                        domain.Uploader
		tags, categories, hashes string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT doc_id, extractor, uploader_id, name, tags, categories, hashtags
		FROM uploaders WHERE extractor = ? AND name = ?`,
		extractor, name,
	).Scan(&u.DocumentID, &u.Extractor, &u.ID, &u.Name, &tags, &categories, &hashes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUploaderNotFound
	}
	if err != nil {
		return nil, domain.NewStorageError("uploaders.get", err)
	}

	if u.Tags, err = decodeTable(tags); err != nil {
		return nil, domain.NewStorageError("uploaders.get", err)
	}
	if u.Categories, err = decodeTable(categories); err != nil {
		return nil, domain.NewStorageError("uploaders.get", err)
	}
	if u.Hashtags, err = decodeTable(hashes); err != nil {
		return nil, domain.NewStorageError("uploaders.get", err)
	}
	return &u, nil
}

// Save upserts an uploader by (extractor, name).
func (r *SQLiteUploaderRepository) Save(ctx context.Context, u *domain.Uploader) error {
	tags, err := encodeTable(u.Tags)
	if err != nil {
		return err
	}
	categories, err := encodeTable(u.Categories)
	if err != nil {
		return err
	}
	hashtags, err := encodeTable(u.Hashtags)
	if err != nil {
		return err
	}

	var docID string
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO uploaders (doc_id, extractor, uploader_id, name, tags, categories, hashtags)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (extractor, name) DO UPDATE SET
			uploader_id = excluded.uploader_id,
			tags = excluded.tags,
			categories = excluded.categories,
			hashtags = excluded.hashtags
		RETURNING doc_id`,
		uuid.NewString(), u.Extractor, u.ID, u.Name, tags, categories, hashtags,
	).Scan(&docID)
	if err != nil {
		return domain.NewStorageError("uploaders.save", err)
	}

	u.DocumentID = docID
	return nil
}
