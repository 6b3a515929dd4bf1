package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/vidshelf/internal/domain"
)

const videoColumns = `doc_id, extractor, video_id, title, uploader, upload_date,
	view_count, like_count, dislike_count, tags, categories, hashtags, uploader_doc_id`

// eachBatchSize is the page size Each reads with. Rows are released before
// fn runs so callbacks may use the store.
const eachBatchSize = 256

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(s rowScanner) (*domain.Video, error) {
	var (
		v                        domain.Video
		uploadDate               int64
		tags, categories, hashes string
	)
	err := s.Scan(&v.DocumentID, &v.Extractor, &v.ID, &v.Title, &v.Uploader, &uploadDate,
		&v.ViewCount, &v.LikeCount, &v.DislikeCount, &tags, &categories, &hashes, &v.UploaderDocumentID)
	if err != nil {
		return nil, err
	}
	v.UploadDate = time.UnixMilli(uploadDate).UTC()
	if v.Tags, err = decodeStrings(tags); err != nil {
		return nil, err
	}
	if v.Categories, err = decodeStrings(categories); err != nil {
		return nil, err
	}
	if v.Hashtags, err = decodeStrings(hashes); err != nil {
		return nil, err
	}
	return &v, nil
}

// SQLiteVideoRepository implements VideoRepository on SQLite.
type SQLiteVideoRepository struct {
	db *sql.DB
}

// videoWhere builds the WHERE clause for a query and filter. Caller values
// are always bound as parameters.
func videoWhere(q domain.VideoQuery, f domain.VideoFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Extractor != "" {
		conds = append(conds, "extractor = ?")
		args = append(args, f.Extractor)
	}
	if f.Uploader != "" {
		conds = append(conds, "uploader = ?")
		args = append(args, f.Uploader)
	}
	if q.Text != "" {
		conds = append(conds, `title LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(q.Text)+"%")
	}
	labels := []struct {
		column string
		value  string
	}{
		{"tags", q.Tag},
		{"categories", q.Category},
		{"hashtags", q.Hashtag},
	}
	for _, l := range labels {
		if l.value == "" {
			continue
		}
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(videos."+l.column+") WHERE json_each.value = ?)")
		args = append(args, l.value)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// videoOrder returns a total ordering; doc_id breaks every tie.
func videoOrder(s domain.VideoSort) string {
	switch s.Normalize() {
	case domain.SortOldest:
		return " ORDER BY upload_date ASC, doc_id ASC"
	case domain.SortViews:
		return " ORDER BY view_count DESC, doc_id ASC"
	case domain.SortLikes:
		return " ORDER BY like_count DESC, doc_id ASC"
	case domain.SortDislikes:
		return " ORDER BY dislike_count DESC, doc_id ASC"
	case domain.SortTitle:
		return " ORDER BY title ASC, doc_id ASC"
	}
	return " ORDER BY upload_date DESC, doc_id ASC"
}

// Find returns a page of matching videos with uploaders resolved.
func (r *SQLiteVideoRepository) Find(ctx context.Context, q domain.VideoQuery, f domain.VideoFilter, offset, limit int64) ([]*domain.Video, error) {
	if limit <= 0 {
		return []*domain.Video{}, nil
	}
	if offset < 0 {
		offset = 0
	}

	where, args := videoWhere(q, f)
	query := "SELECT " + videoColumns + " FROM videos" + where + videoOrder(q.Sort) + " LIMIT ? OFFSET ?"
	videos, err := queryVideos(ctx, r.db, query, append(args, limit, offset)...)
	if err != nil {
		return nil, domain.NewStorageError("videos.find", err)
	}
	if err := resolveUploaderRefs(ctx, r.db, videos); err != nil {
		return nil, err
	}
	return videos, nil
}

// Count returns the number of matching videos.
func (r *SQLiteVideoRepository) Count(ctx context.Context, q domain.VideoQuery, f domain.VideoFilter) (int64, error) {
	where, args := videoWhere(q, f)
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM videos"+where, args...).Scan(&n); err != nil {
		return 0, domain.NewStorageError("videos.count", err)
	}
	return n, nil
}

// Get retrieves a video by key.
func (r *SQLiteVideoRepository) Get(ctx context.Context, key domain.VideoKey) (*domain.Video, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+videoColumns+" FROM videos WHERE extractor = ? AND video_id = ?",
		key.Extractor, key.ID)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrVideoNotFound
	}
	if err != nil {
		return nil, domain.NewStorageError("videos.get", err)
	}
	if err := resolveUploaderRefs(ctx, r.db, []*domain.Video{video}); err != nil {
		return nil, err
	}
	return video, nil
}

// Each streams every video through fn in document id order.
func (r *SQLiteVideoRepository) Each(ctx context.Context, fn func(*domain.Video) error) error {
	after := ""
	for {
		batch, err := queryVideos(ctx, r.db,
			"SELECT "+videoColumns+" FROM videos WHERE doc_id > ? ORDER BY doc_id ASC LIMIT ?",
			after, eachBatchSize)
		if err != nil {
			return domain.NewStorageError("videos.each", err)
		}
		for _, v := range batch {
			if err := fn(v); err != nil {
				return err
			}
		}
		if len(batch) < eachBatchSize {
			return nil
		}
		after = batch[len(batch)-1].DocumentID
	}
}

// Save upserts a video by (extractor, id). An existing row keeps its
// document id.
func (r *SQLiteVideoRepository) Save(ctx context.Context, video *domain.Video) error {
	tags, err := encodeStrings(video.Tags)
	if err != nil {
		return err
	}
	categories, err := encodeStrings(video.Categories)
	if err != nil {
		return err
	}
	hashtags, err := encodeStrings(video.Hashtags)
	if err != nil {
		return err
	}

	var docID string
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO videos (`+videoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (extractor, video_id) DO UPDATE SET
			title = excluded.title,
			uploader = excluded.uploader,
			upload_date = excluded.upload_date,
			view_count = excluded.view_count,
			like_count = excluded.like_count,
			dislike_count = excluded.dislike_count,
			tags = excluded.tags,
			categories = excluded.categories,
			hashtags = excluded.hashtags,
			uploader_doc_id = excluded.uploader_doc_id
		RETURNING doc_id`,
		uuid.NewString(), video.Extractor, video.ID, video.Title, video.Uploader,
		video.UploadDate.UnixMilli(), video.ViewCount, video.LikeCount, video.DislikeCount,
		tags, categories, hashtags, video.UploaderDocumentID,
	).Scan(&docID)
	if err != nil {
		return domain.NewStorageError("videos.save", err)
	}

	video.DocumentID = docID
	return nil
}

// queryVideos runs query and reads every row before returning, so the
// single connection is free again when it returns.
func queryVideos(ctx context.Context, q queryer, query string, args ...any) ([]*domain.Video, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	videos := []*domain.Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// findVideosByDocIDs loads videos by document id, keyed by id.
func findVideosByDocIDs(ctx context.Context, q queryer, ids []string) (map[string]*domain.Video, error) {
	out := make(map[string]*domain.Video, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	videos, err := queryVideos(ctx, q,
		"SELECT "+videoColumns+" FROM videos WHERE doc_id IN ("+placeholders(len(ids))+")",
		stringArgs(ids)...)
	if err != nil {
		return nil, domain.NewStorageError("videos.find_by_ids", err)
	}
	for _, v := range videos {
		out[v.DocumentID] = v
	}
	if err := resolveUploaderRefs(ctx, q, videos); err != nil {
		return nil, err
	}
	return out, nil
}

// resolveUploaderRefs batch-loads the uploader projection for videos.
func resolveUploaderRefs(ctx context.Context, q queryer, videos []*domain.Video) error {
	seen := make(map[string]struct{})
	var ids []string
	for _, v := range videos {
		if v.UploaderDocumentID == "" {
			continue
		}
		if _, ok := seen[v.UploaderDocumentID]; ok {
			continue
		}
		seen[v.UploaderDocumentID] = struct{}{}
		ids = append(ids, v.UploaderDocumentID)
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := q.QueryContext(ctx,
		"SELECT doc_id, extractor, uploader_id, name FROM uploaders WHERE doc_id IN ("+placeholders(len(ids))+")",
		stringArgs(ids)...)
	if err != nil {
		return domain.NewStorageError("uploaders.resolve", err)
	}
	refs := make(map[string]*domain.UploaderRef, len(ids))
	for rows.Next() {
		var ref domain.UploaderRef
		if err := rows.Scan(&ref.DocumentID, &ref.Extractor, &ref.ID, &ref.Name); err != nil {
			rows.Close()
			return domain.NewStorageError("uploaders.resolve", err)
		}
		refs[ref.DocumentID] = &ref
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return domain.NewStorageError("uploaders.resolve", err)
	}
	rows.Close()

	for _, v := range videos {
		if ref, ok := refs[v.UploaderDocumentID]; ok {
			c := *ref
			v.UploaderDocument = &c
		}
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func stringArgs(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
