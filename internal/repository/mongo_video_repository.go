package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iconidentify/vidshelf/internal/domain"
)

// videoDocument is the stored form of a video.
type videoDocument struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Extractor        string             `bson:"extractor"`
	VideoID          string             `bson:"id"`
	Title            string             `bson:"title"`
	Uploader         string             `bson:"uploader"`
	UploadDate       time.Time          `bson:"uploadDate"`
	ViewCount        int64              `bson:"viewCount"`
	LikeCount        int64              `bson:"likeCount"`
	DislikeCount     int64              `bson:"dislikeCount"`
	Tags             []string           `bson:"tags"`
	Categories       []string           `bson:"categories"`
	Hashtags         []string           `bson:"hashtags"`
	UploaderDocument primitive.ObjectID `bson:"uploaderDocument,omitempty"`
}

func (d *videoDocument) toDomain() *domain.Video {
	v := &domain.Video{
		DocumentID:   d.ID.Hex(),
		Extractor:    d.Extractor,
		ID:           d.VideoID,
		Title:        d.Title,
		Uploader:     d.Uploader,
		UploadDate:   d.UploadDate,
		ViewCount:    d.ViewCount,
		LikeCount:    d.LikeCount,
		DislikeCount: d.DislikeCount,
		Tags:         nonNil(d.Tags),
		Categories:   nonNil(d.Categories),
		Hashtags:     nonNil(d.Hashtags),
	}
	if !d.UploaderDocument.IsZero() {
		v.UploaderDocumentID = d.UploaderDocument.Hex()
	}
	return v
}

func videoDocumentFrom(v *domain.Video) (*videoDocument, error) {
	doc := &videoDocument{
		Extractor:    v.Extractor,
		VideoID:      v.ID,
		Title:        v.Title,
		Uploader:     v.Uploader,
		UploadDate:   v.UploadDate.UTC(),
		ViewCount:    v.ViewCount,
		LikeCount:    v.LikeCount,
		DislikeCount: v.DislikeCount,
		Tags:         nonNil(v.Tags),
		Categories:   nonNil(v.Categories),
		Hashtags:     nonNil(v.Hashtags),
	}
	if v.UploaderDocumentID != "" {
		oid, err := primitive.ObjectIDFromHex(v.UploaderDocumentID)
		if err != nil {
			return nil, fmt.Errorf("uploader document id %q: %w", v.UploaderDocumentID, err)
		}
		doc.UploaderDocument = oid
	}
	return doc, nil
}

// MongoVideoRepository implements VideoRepository on a Mongo collection.
type MongoVideoRepository struct {
	videos    *mongo.Collection
	uploaders *mongo.Collection
}

// videoFilter builds the match document for a query and filter. Every
// caller value is placed in a value position or escaped into a literal
// regex, so no input is interpreted as an operator.
func videoFilter(q domain.VideoQuery, f domain.VideoFilter) bson.D {
	filter := bson.D{}
	if f.Extractor != "" {
		filter = append(filter, bson.E{Key: "extractor", Value: f.Extractor})
	}
	if f.Uploader != "" {
		filter = append(filter, bson.E{Key: "uploader", Value: f.Uploader})
	}
	if q.Text != "" {
		filter = append(filter, bson.E{Key: "title", Value: primitive.Regex{
			Pattern: regexp.QuoteMeta(q.Text),
			Options: "i",
		}})
	}
	if q.Tag != "" {
		filter = append(filter, bson.E{Key: "tags", Value: q.Tag})
	}
	if q.Category != "" {
		filter = append(filter, bson.E{Key: "categories", Value: q.Category})
	}
	if q.Hashtag != "" {
		filter = append(filter, bson.E{Key: "hashtags", Value: q.Hashtag})
	}
	return filter
}

// videoSort returns a total ordering; _id breaks every tie.
func videoSort(s domain.VideoSort) bson.D {
	switch s.Normalize() {
	case domain.SortOldest:
		return bson.D{{Key: "uploadDate", Value: 1}, {Key: "_id", Value: 1}}
	case domain.SortViews:
		return bson.D{{Key: "viewCount", Value: -1}, {Key: "_id", Value: 1}}
	case domain.SortLikes:
		return bson.D{{Key: "likeCount", Value: -1}, {Key: "_id", Value: 1}}
	case domain.SortDislikes:
		return bson.D{{Key: "dislikeCount", Value: -1}, {Key: "_id", Value: 1}}
	case domain.SortTitle:
		return bson.D{{Key: "title", Value: 1}, {Key: "_id", Value: 1}}
	}
	return bson.D{{Key: "uploadDate", Value: -1}, {Key: "_id", Value: 1}}
}

// Find returns a page of matching videos with uploaders resolved.
func (r *MongoVideoRepository) Find(ctx context.Context, q domain.VideoQuery, f domain.VideoFilter, offset, limit int64) ([]*domain.Video, error) {
	if limit <= 0 {
		return []*domain.Video{}, nil
	}
	if offset < 0 {
		offset = 0
	}

	opts := options.Find().
		SetSort(videoSort(q.Sort)).
		SetSkip(offset).
		SetLimit(limit)

	cursor, err := r.videos.Find(ctx, videoFilter(q, f), opts)
	if err != nil {
		return nil, domain.NewStorageError("videos.find", err)
	}
	var docs []videoDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, domain.NewStorageError("videos.find", err)
	}

	videos := make([]*domain.Video, 0, len(docs))
	for i := range docs {
		videos = append(videos, docs[i].toDomain())
	}
	if err := r.resolveUploaders(ctx, videos); err != nil {
		return nil, err
	}
	return videos, nil
}

// Count returns the number of matching videos.
func (r *MongoVideoRepository) Count(ctx context.Context, q domain.VideoQuery, f domain.VideoFilter) (int64, error) {
	n, err := r.videos.CountDocuments(ctx, videoFilter(q, f))
	if err != nil {
		return 0, domain.NewStorageError("videos.count", err)
	}
	return n, nil
}

// Get retrieves a video by key.
func (r *MongoVideoRepository) Get(ctx context.Context, key domain.VideoKey) (*domain.Video, error) {
	var doc videoDocument
	err := r.videos.FindOne(ctx, bson.D{
		{Key: "extractor", Value: key.Extractor},
		{Key: "id", Value: key.ID},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrVideoNotFound
	}
	if err != nil {
		return nil, domain.NewStorageError("videos.get", err)
	}

	video := doc.toDomain()
	if err := r.resolveUploaders(ctx, []*domain.Video{video}); err != nil {
		return nil, err
	}
	return video, nil
}

// Each streams every video through fn.
func (r *MongoVideoRepository) Each(ctx context.Context, fn func(*domain.Video) error) error {
	cursor, err := r.videos.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return domain.NewStorageError("videos.each", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc videoDocument
		if err := cursor.Decode(&doc); err != nil {
			return domain.NewStorageError("videos.each", err)
		}
		if err := fn(doc.toDomain()); err != nil {
			return err
		}
	}
	return domain.NewStorageError("videos.each", cursor.Err())
}

// Save upserts a video by (extractor, id).
func (r *MongoVideoRepository) Save(ctx context.Context, video *domain.Video) error {
	doc, err := videoDocumentFrom(video)
	if err != nil {
		return err
	}

	opts := options.FindOneAndReplace().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var saved videoDocument
	err = r.videos.FindOneAndReplace(ctx, bson.D{
		{Key: "extractor", Value: video.Extractor},
		{Key: "id", Value: video.ID},
	}, doc, opts).Decode(&saved)
	if err != nil {
		return domain.NewStorageError("videos.save", err)
	}

	video.DocumentID = saved.ID.Hex()
	return nil
}

// findByIDs loads videos by document id, keyed by hex id.
func (r *MongoVideoRepository) findByIDs(ctx context.Context, ids []primitive.ObjectID) (map[string]*domain.Video, error) {
	out := make(map[string]*domain.Video, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cursor, err := r.videos.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, domain.NewStorageError("videos.find_by_ids", err)
	}
	var docs []videoDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, domain.NewStorageError("videos.find_by_ids", err)
	}

	videos := make([]*domain.Video, 0, len(docs))
	for i := range docs {
		v := docs[i].toDomain()
		videos = append(videos, v)
		out[v.DocumentID] = v
	}
	if err := r.resolveUploaders(ctx, videos); err != nil {
		return nil, err
	}
	return out, nil
}

// resolveUploaders batch-loads the uploader projection for videos.
func (r *MongoVideoRepository) resolveUploaders(ctx context.Context, videos []*domain.Video) error {
	seen := make(map[primitive.ObjectID]struct{})
	var ids []primitive.ObjectID
	for _, v := range videos {
		if v.UploaderDocumentID == "" {
			continue
		}
		oid, err := primitive.ObjectIDFromHex(v.UploaderDocumentID)
		if err != nil {
			continue
		}
		if _, ok := seen[oid]; ok {
			continue
		}
		seen[oid] = struct{}{}
		ids = append(ids, oid)
	}
	if len(ids) == 0 {
		return nil
	}

	opts := options.Find().SetProjection(bson.D{
		{Key: "extractor", Value: 1},
		{Key: "id", Value: 1},
		{Key: "name", Value: 1},
	})
	cursor, err := r.uploaders.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}, opts)
	if err != nil {
		return domain.NewStorageError("uploaders.resolve", err)
	}
	var docs []uploaderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return domain.NewStorageError("uploaders.resolve", err)
	}

	refs := make(map[string]*domain.UploaderRef, len(docs))
	for i := range docs {
		refs[docs[i].ID.Hex()] = docs[i].toDomain().Ref()
	}
	for _, v := range videos {
		if ref, ok := refs[v.UploaderDocumentID]; ok {
			c := *ref
			v.UploaderDocument = &c
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
