package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iconidentify/vidshelf/internal/catalog"
	"github.com/iconidentify/vidshelf/internal/domain"
)

// statisticDocument is the stored form of a statistic. Each leader keeps
// the value it was recorded with so replacement can be decided by the
// store in a single conditional update.
type statisticDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	AccessKey  string             `bson:"accessKey"`
	Statistics statisticBody      `bson:"statistics"`
}

type statisticBody struct {
	RecordViewCountVideo    *primitive.ObjectID `bson:"recordViewCountVideo"`
	RecordViewCount         int64               `bson:"recordViewCount"`
	RecordLikeCountVideo    *primitive.ObjectID `bson:"recordLikeCountVideo"`
	RecordLikeCount         int64               `bson:"recordLikeCount"`
	RecordDislikeCountVideo *primitive.ObjectID `bson:"recordDislikeCountVideo"`
	RecordDislikeCount      int64               `bson:"recordDislikeCount"`
	OldestVideo             *primitive.ObjectID `bson:"oldestVideo"`
	OldestUploadDate        time.Time           `bson:"oldestUploadDate"`
	Tags                    []labelDocument     `bson:"tags"`
	Categories              []labelDocument     `bson:"categories"`
	Hashtags                []labelDocument     `bson:"hashtags"`
}

func emptyStatisticBody() statisticBody {
	return statisticBody{
		Tags:       []labelDocument{},
		Categories: []labelDocument{},
		Hashtags:   []labelDocument{},
	}
}

func (b *statisticBody) leader(c domain.Counter) *primitive.ObjectID {
	switch c {
	case domain.CounterViews:
		return b.RecordViewCountVideo
	case domain.CounterLikes:
		return b.RecordLikeCountVideo
	case domain.CounterDislikes:
		return b.RecordDislikeCountVideo
	}
	return nil
}

func (b *statisticBody) table(kind domain.LabelKind) []labelDocument {
	switch kind {
	case domain.LabelTags:
		return b.Tags
	case domain.LabelCategories:
		return b.Categories
	case domain.LabelHashtags:
		return b.Hashtags
	}
	return nil
}

// leaderFields returns the reference and value paths for a counter.
func leaderFields(c domain.Counter) (ref, value string) {
	switch c {
	case domain.CounterViews:
		return "statistics.recordViewCountVideo", "statistics.recordViewCount"
	case domain.CounterLikes:
		return "statistics.recordLikeCountVideo", "statistics.recordLikeCount"
	default:
		return "statistics.recordDislikeCountVideo", "statistics.recordDislikeCount"
	}
}

// memberDocument marks a video as counted into a statistic's tables.
type memberDocument struct {
	AccessKey string             `bson:"accessKey"`
	Video     primitive.ObjectID `bson:"video"`
}

// MongoStatisticRepository implements StatisticRepository with atomic
// single-document updates.
type MongoStatisticRepository struct {
	coll    *mongo.Collection
	members *mongo.Collection
	videos  *MongoVideoRepository
}

// GetOrCreate returns the statistic for accessKey, creating it if absent.
func (r *MongoStatisticRepository) GetOrCreate(ctx context.Context, accessKey string) (*domain.Statistic, error) {
	doc, err := r.find(ctx, accessKey)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if err := r.ensure(ctx, accessKey); err != nil {
			return nil, err
		}
		doc, err = r.find(ctx, accessKey)
	}
	if err != nil {
		return nil, domain.NewStorageError("statistics.get", err)
	}
	return r.resolve(ctx, doc)
}

func (r *MongoStatisticRepository) find(ctx context.Context, accessKey string) (*statisticDocument, error) {
	var doc statisticDocument
	if err := r.coll.FindOne(ctx, bson.D{{Key: "accessKey", Value: accessKey}}).Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ensure creates the empty statistic document if it does not exist. Two
// concurrent upserts can both miss and both insert; the unique accessKey
// index rejects the second, which is the expected outcome.
func (r *MongoStatisticRepository) ensure(ctx context.Context, accessKey string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "accessKey", Value: accessKey}},
		bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "statistics", Value: emptyStatisticBody()}}}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return domain.NewStorageError("statistics.create", err)
	}
	return nil
}

// resolve loads the leader videos referenced by doc.
func (r *MongoStatisticRepository) resolve(ctx context.Context, doc *statisticDocument) (*domain.Statistic, error) {
	body := &doc.Statistics
	var ids []primitive.ObjectID
	for _, c := range domain.Counters {
		if id := body.leader(c); id != nil {
			ids = append(ids, *id)
		}
	}
	if body.OldestVideo != nil {
		ids = append(ids, *body.OldestVideo)
	}

	videos, err := r.videos.findByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	lookup := func(id *primitive.ObjectID) *domain.Video {
		if id == nil {
			return nil
		}
		return videos[id.Hex()].Clone()
	}

	stat := domain.NewStatistic(doc.AccessKey)
	for _, c := range domain.Counters {
		stat.SetLeader(c, lookup(body.leader(c)))
	}
	stat.OldestVideo = lookup(body.OldestVideo)
	for _, kind := range domain.LabelKinds {
		rows := body.table(kind)
		names := make([]string, 0, len(rows))
		for _, row := range rows {
			names = append(names, row.Name)
		}
		stat.SetTable(kind, frequencyTable(rows))
		stat.SetFirstSeen(kind, names)
	}
	return stat, nil
}

// Record folds video into the statistic for accessKey.
func (r *MongoStatisticRepository) Record(ctx context.Context, accessKey string, video *domain.Video) error {
	oid, err := primitive.ObjectIDFromHex(video.DocumentID)
	if err != nil {
		return fmt.Errorf("record video %s: document id %q: %w", video.Key(), video.DocumentID, err)
	}

	if err := r.ensure(ctx, accessKey); err != nil {
		return err
	}
	return recordVideo(ctx, r, accessKey, oid, video)
}

// unmarkTimeout bounds the cleanup after a failed label update. It runs
// detached from the caller's context, which may be what failed.
const unmarkTimeout = 5 * time.Second

// statisticWriter is the sequence of writes one Record is made of.
type statisticWriter interface {
	markRecorded(ctx context.Context, accessKey string, video primitive.ObjectID) (bool, error)
	unmarkRecorded(ctx context.Context, accessKey string, video primitive.ObjectID) error
	countLabels(ctx context.Context, accessKey string, labels map[domain.LabelKind][]string) error
	offerLeaders(ctx context.Context, accessKey string, id primitive.ObjectID, video *domain.Video) error
}

// recordVideo marks the video as counted, applies its labels in one update
// and then offers it to the leaders. A failed label update removes the mark
// again, so a redelivered video is counted instead of skipped.
func recordVideo(ctx context.Context, w statisticWriter, accessKey string, id primitive.ObjectID, video *domain.Video) error {
	first, err := w.markRecorded(ctx, accessKey, id)
	if err != nil {
		return err
	}

	if first {
		if err := w.countLabels(ctx, accessKey, videoLabels(video)); err != nil {
			cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unmarkTimeout)
			defer cancel()
			if uerr := w.unmarkRecorded(cleanupCtx, accessKey, id); uerr != nil {
				return errors.Join(err, uerr)
			}
			return err
		}
	}

	return w.offerLeaders(ctx, accessKey, id, video)
}

// videoLabels returns the distinct non-empty labels of video per family,
// leaving out empty families.
func videoLabels(video *domain.Video) map[domain.LabelKind][]string {
	out := make(map[domain.LabelKind][]string, len(domain.LabelKinds))
	for _, kind := range domain.LabelKinds {
		if labels := catalog.Distinct(video.Labels(kind)); len(labels) > 0 {
			out[kind] = labels
		}
	}
	return out
}

// markRecorded reports whether this is the first time the video is
// recorded for accessKey.
func (r *MongoStatisticRepository) markRecorded(ctx context.Context, accessKey string, video primitive.ObjectID) (bool, error) {
	_, err := r.members.InsertOne(ctx, memberDocument{AccessKey: accessKey, Video: video})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, domain.NewStorageError("statistics.mark_recorded", err)
	}
	return true, nil
}

func (r *MongoStatisticRepository) unmarkRecorded(ctx context.Context, accessKey string, video primitive.ObjectID) error {
	_, err := r.members.DeleteOne(ctx, bson.D{
		{Key: "accessKey", Value: accessKey},
		{Key: "video", Value: video},
	})
	if err != nil {
		return domain.NewStorageError("statistics.unmark_recorded", err)
	}
	return nil
}

// countLabels increments every label of one video in a single pipeline
// update, so the statistic document sees all of them or none. New labels
// are appended, which keeps the arrays in first-seen order.
func (r *MongoStatisticRepository) countLabels(ctx context.Context, accessKey string, labels map[domain.LabelKind][]string) error {
	var fields bson.D
	for _, kind := range domain.LabelKinds {
		if len(labels[kind]) == 0 {
			continue
		}
		fields = append(fields, labelCountField("statistics."+string(kind), labels[kind]))
	}
	if len(fields) == 0 {
		return nil
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "accessKey", Value: accessKey}},
		mongo.Pipeline{{{Key: "$set", Value: fields}}},
	)
	if err != nil {
		return domain.NewStorageError("statistics.count_labels", err)
	}
	if res.MatchedCount == 0 {
		return domain.NewStorageError("statistics.count_labels",
			fmt.Errorf("statistic %q does not exist", accessKey))
	}
	return nil
}

// labelCountField builds the pipeline expression that adds one to each of
// labels in the array at path and appends the ones not present yet. Labels
// are bound through $literal so values starting with "$" stay data.
func labelCountField(path string, labels []string) bson.E {
	incremented := bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: "$$cur"},
		{Key: "as", Value: "row"},
		{Key: "in", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$in", Value: bson.A{"$$row.name", "$$add"}}},
			bson.D{
				{Key: "name", Value: "$$row.name"},
				{Key: "count", Value: bson.D{{Key: "$add", Value: bson.A{"$$row.count", int64(1)}}}},
			},
			"$$row",
		}}}},
	}}}
	appended := bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: bson.D{{Key: "$filter", Value: bson.D{
			{Key: "input", Value: "$$add"},
			{Key: "as", Value: "label"},
			{Key: "cond", Value: bson.D{{Key: "$not", Value: bson.A{
				bson.D{{Key: "$in", Value: bson.A{"$$label", "$$cur.name"}}},
			}}}},
		}}}},
		{Key: "as", Value: "label"},
		{Key: "in", Value: bson.D{
			{Key: "name", Value: "$$label"},
			{Key: "count", Value: int64(1)},
		}},
	}}}

	return bson.E{Key: path, Value: bson.D{{Key: "$let", Value: bson.D{
		{Key: "vars", Value: bson.D{
			{Key: "cur", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$" + path, bson.A{}}}}},
			{Key: "add", Value: bson.D{{Key: "$literal", Value: labels}}},
		}},
		{Key: "in", Value: bson.D{{Key: "$concatArrays", Value: bson.A{incremented, appended}}}},
	}}}}
}

// offerLeaders offers video to every counter leader and the oldest slot.
func (r *MongoStatisticRepository) offerLeaders(ctx context.Context, accessKey string, id primitive.ObjectID, video *domain.Video) error {
	for _, c := range domain.Counters {
		if err := r.offerLeader(ctx, accessKey, c, id, video.Count(c)); err != nil {
			return err
		}
	}
	return r.offerOldest(ctx, accessKey, id, video.UploadDate.UTC())
}

// offerLeader replaces the counter's leader only when value strictly beats
// the stored one.
func (r *MongoStatisticRepository) offerLeader(ctx context.Context, accessKey string, c domain.Counter, video primitive.ObjectID, value int64) error {
	refField, valueField := leaderFields(c)
	filter := bson.D{
		{Key: "accessKey", Value: accessKey},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: refField, Value: nil}},
			bson.D{{Key: valueField, Value: bson.D{{Key: "$lt", Value: value}}}},
		}},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: refField, Value: video},
		{Key: valueField, Value: value},
	}}}

	if _, err := r.coll.UpdateOne(ctx, filter, update); err != nil {
		return domain.NewStorageError("statistics.leader", err)
	}
	return nil
}

// offerOldest replaces the oldest video only when uploaded strictly
// earlier.
func (r *MongoStatisticRepository) offerOldest(ctx context.Context, accessKey string, video primitive.ObjectID, uploaded time.Time) error {
	filter := bson.D{
		{Key: "accessKey", Value: accessKey},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "statistics.oldestVideo", Value: nil}},
			bson.D{{Key: "statistics.oldestUploadDate", Value: bson.D{{Key: "$gt", Value: uploaded}}}},
		}},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "statistics.oldestVideo", Value: video},
		{Key: "statistics.oldestUploadDate", Value: uploaded},
	}}}

	if _, err := r.coll.UpdateOne(ctx, filter, update); err != nil {
		return domain.NewStorageError("statistics.oldest", err)
	}
	return nil
}

// Replace overwrites the statistic and its recorded-video set.
func (r *MongoStatisticRepository) Replace(ctx context.Context, stat *domain.Statistic, recorded []string) error {
	body := emptyStatisticBody()

	ref := func(v *domain.Video) (*primitive.ObjectID, error) {
		if v == nil {
			return nil, nil
		}
		oid, err := primitive.ObjectIDFromHex(v.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("leader %s: document id %q: %w", v.Key(), v.DocumentID, err)
		}
		return &oid, nil
	}

	var err error
	if body.RecordViewCountVideo, err = ref(stat.RecordViewCountVideo); err != nil {
		return err
	}
	if body.RecordLikeCountVideo, err = ref(stat.RecordLikeCountVideo); err != nil {
		return err
	}
	if body.RecordDislikeCountVideo, err = ref(stat.RecordDislikeCountVideo); err != nil {
		return err
	}
	if body.OldestVideo, err = ref(stat.OldestVideo); err != nil {
		return err
	}
	if v := stat.RecordViewCountVideo; v != nil {
		body.RecordViewCount = v.ViewCount
	}
	if v := stat.RecordLikeCountVideo; v != nil {
		body.RecordLikeCount = v.LikeCount
	}
	if v := stat.RecordDislikeCountVideo; v != nil {
		body.RecordDislikeCount = v.DislikeCount
	}
	if v := stat.OldestVideo; v != nil {
		body.OldestUploadDate = v.UploadDate.UTC()
	}
	body.Tags = labelDocuments(catalog.FirstSeenRows(stat, domain.LabelTags))
	body.Categories = labelDocuments(catalog.FirstSeenRows(stat, domain.LabelCategories))
	body.Hashtags = labelDocuments(catalog.FirstSeenRows(stat, domain.LabelHashtags))

	members := make([]interface{}, 0, len(recorded))
	for _, id := range recorded {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return fmt.Errorf("recorded video document id %q: %w", id, err)
		}
		members = append(members, memberDocument{AccessKey: stat.AccessKey, Video: oid})
	}

	_, err = r.coll.ReplaceOne(ctx,
		bson.D{{Key: "accessKey", Value: stat.AccessKey}},
		statisticDocument{AccessKey: stat.AccessKey, Statistics: body},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return domain.NewStorageError("statistics.replace", err)
	}

	if _, err := r.members.DeleteMany(ctx, bson.D{{Key: "accessKey", Value: stat.AccessKey}}); err != nil {
		return domain.NewStorageError("statistics.replace_members", err)
	}
	if len(members) == 0 {
		return nil
	}
	_, err = r.members.InsertMany(ctx, members, options.InsertMany().SetOrdered(false))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return domain.NewStorageError("statistics.replace_members", err)
	}
	return nil
}
