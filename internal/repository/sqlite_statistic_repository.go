package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iconidentify/vidshelf/internal/catalog"
	"github.com/iconidentify/vidshelf/internal/domain"
)

// leaderColumns returns the reference and value columns for a counter.
func leaderColumns(c domain.Counter) (ref, value string) {
	switch c {
	case domain.CounterViews:
		return "view_video", "view_count"
	case domain.CounterLikes:
		return "like_video", "like_count"
	default:
		return "dislike_video", "dislike_count"
	}
}

// SQLiteStatisticRepository implements StatisticRepository on SQLite. Each
// Record is one transaction made of the same conditional updates the
// document backend issues.
type SQLiteStatisticRepository struct {
	db *sql.DB
}

// GetOrCreate returns the statistic for accessKey, creating it if absent.
func (r *SQLiteStatisticRepository) GetOrCreate(ctx context.Context, accessKey string) (*domain.Statistic, error) {
	if err := ensureStatistic(ctx, r.db, accessKey); err != nil {
		return nil, err
	}

	var (
		refs     [4]sql.NullString
		counts   [3]int64
		oldestAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT view_video, view_count, like_video, like_count,
		       dislike_video, dislike_count, oldest_video, oldest_upload_date
		FROM statistics WHERE access_key = ?`, accessKey,
	).Scan(&refs[0], &counts[0], &refs[1], &counts[1], &refs[2], &counts[2], &refs[3], &oldestAt)
	if err != nil {
		return nil, domain.NewStorageError("statistics.get", err)
	}

	stat := domain.NewStatistic(accessKey)
	if err := r.loadLabels(ctx, stat); err != nil {
		return nil, err
	}

	var ids []string
	for _, ref := range refs {
		if ref.Valid {
			ids = append(ids, ref.String)
		}
	}
	videos, err := findVideosByDocIDs(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	lookup := func(ref sql.NullString) *domain.Video {
		if !ref.Valid {
			return nil
		}
		return videos[ref.String].Clone()
	}
	for i, c := range domain.Counters {
		stat.SetLeader(c, lookup(refs[i]))
	}
	stat.OldestVideo = lookup(refs[3])
	return stat, nil
}

// loadLabels fills the frequency tables of stat. The sequence column is
// the first-seen order; ranking keeps it among equal counts.
func (r *SQLiteStatisticRepository) loadLabels(ctx context.Context, stat *domain.Statistic) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, label, count FROM statistic_labels
		WHERE access_key = ?
		ORDER BY seq ASC`, stat.AccessKey)
	if err != nil {
		return domain.NewStorageError("statistics.labels", err)
	}
	defer rows.Close()

	seen := make(map[domain.LabelKind][]domain.LabelCount, len(domain.LabelKinds))
	for rows.Next() {
		var (
			kind string
			row  domain.LabelCount
		)
		if err := rows.Scan(&kind, &row.Name, &row.Count); err != nil {
			return domain.NewStorageError("statistics.labels", err)
		}
		k := domain.LabelKind(kind)
		seen[k] = append(seen[k], row)
	}
	if err := rows.Err(); err != nil {
		return domain.NewStorageError("statistics.labels", err)
	}

	for _, kind := range domain.LabelKinds {
		names := make([]string, 0, len(seen[kind]))
		for _, row := range seen[kind] {
			names = append(names, row.Name)
		}
		stat.SetTable(kind, catalog.Rank(seen[kind]))
		stat.SetFirstSeen(kind, names)
	}
	return nil
}

// ensureStatistic creates the empty statistic row if it does not exist.
func ensureStatistic(ctx context.Context, q queryer, accessKey string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO statistics (access_key) VALUES (?) ON CONFLICT (access_key) DO NOTHING`,
		accessKey)
	if err != nil {
		return domain.NewStorageError("statistics.create", err)
	}
	return nil
}

// Record folds video into the statistic for accessKey.
func (r *SQLiteStatisticRepository) Record(ctx context.Context, accessKey string, video *domain.Video) error {
	if video.DocumentID == "" {
		return fmt.Errorf("record video %s: missing document id", video.Key())
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("statistics.record", err)
	}
	defer tx.Rollback()

	if err := ensureStatistic(ctx, tx, accessKey); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO statistic_members (access_key, video_doc_id) VALUES (?, ?)
		 ON CONFLICT (access_key, video_doc_id) DO NOTHING`,
		accessKey, video.DocumentID)
	if err != nil {
		return domain.NewStorageError("statistics.mark_recorded", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return domain.NewStorageError("statistics.mark_recorded", err)
	}

	for _, c := range domain.Counters {
		if err := offerLeaderRow(ctx, tx, accessKey, c, video.DocumentID, video.Count(c)); err != nil {
			return err
		}
	}
	if err := offerOldestRow(ctx, tx, accessKey, video.DocumentID, video.UploadDate); err != nil {
		return err
	}

	if inserted > 0 {
		for _, kind := range domain.LabelKinds {
			for _, label := range catalog.Distinct(video.Labels(kind)) {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO statistic_labels (access_key, kind, label, count)
					VALUES (?, ?, ?, 1)
					ON CONFLICT (access_key, kind, label) DO UPDATE SET count = count + 1`,
					accessKey, string(kind), label)
				if err != nil {
					return domain.NewStorageError("statistics.increment_label", err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.NewStorageError("statistics.record", err)
	}
	return nil
}

// offerLeaderRow replaces the counter's leader only when value strictly
// beats the stored one.
func offerLeaderRow(ctx context.Context, q queryer, accessKey string, c domain.Counter, docID string, value int64) error {
	ref, col := leaderColumns(c)
	_, err := q.ExecContext(ctx,
		"UPDATE statistics SET "+ref+" = ?, "+col+" = ? WHERE access_key = ? AND ("+ref+" IS NULL OR "+col+" < ?)",
		docID, value, accessKey, value)
	if err != nil {
		return domain.NewStorageError("statistics.leader", err)
	}
	return nil
}

// offerOldestRow replaces the oldest video only when uploaded strictly
// earlier.
func offerOldestRow(ctx context.Context, q queryer, accessKey, docID string, uploaded time.Time) error {
	ms := uploaded.UnixMilli()
	_, err := q.ExecContext(ctx, `
		UPDATE statistics SET oldest_video = ?, oldest_upload_date = ?
		WHERE access_key = ? AND (oldest_video IS NULL OR oldest_upload_date > ?)`,
		docID, ms, accessKey, ms)
	if err != nil {
		return domain.NewStorageError("statistics.oldest", err)
	}
	return nil
}

// Replace overwrites the statistic and its recorded-video set in one
// transaction.
func (r *SQLiteStatisticRepository) Replace(ctx context.Context, stat *domain.Statistic, recorded []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("statistics.replace", err)
	}
	defer tx.Rollback()

	ref := func(v *domain.Video) any {
		if v == nil {
			return nil
		}
		return v.DocumentID
	}
	var (
		counts   [3]int64
		oldestAt int64
	)
	for i, c := range domain.Counters {
		if v := stat.Leader(c); v != nil {
			counts[i] = v.Count(c)
		}
	}
	if stat.OldestVideo != nil {
		oldestAt = stat.OldestVideo.UploadDate.UnixMilli()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO statistics (access_key, view_video, view_count, like_video, like_count,
			dislike_video, dislike_count, oldest_video, oldest_upload_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stat.AccessKey,
		ref(stat.RecordViewCountVideo), counts[0],
		ref(stat.RecordLikeCountVideo), counts[1],
		ref(stat.RecordDislikeCountVideo), counts[2],
		ref(stat.OldestVideo), oldestAt,
	)
	if err != nil {
		return domain.NewStorageError("statistics.replace", err)
	}

	for _, table := range []string{"statistic_labels", "statistic_members"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE access_key = ?", stat.AccessKey); err != nil {
			return domain.NewStorageError("statistics.replace", err)
		}
	}

	for _, kind := range domain.LabelKinds {
		for _, row := range catalog.FirstSeenRows(stat, kind) {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO statistic_labels (access_key, kind, label, count) VALUES (?, ?, ?, ?)`,
				stat.AccessKey, string(kind), row.Name, row.Count)
			if err != nil {
				return domain.NewStorageError("statistics.replace_labels", err)
			}
		}
	}
	for _, id := range recorded {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO statistic_members (access_key, video_doc_id) VALUES (?, ?)
			 ON CONFLICT (access_key, video_doc_id) DO NOTHING`,
			stat.AccessKey, id)
		if err != nil {
			return domain.NewStorageError("statistics.replace_members", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.NewStorageError("statistics.replace", err)
	}
	return nil
}
