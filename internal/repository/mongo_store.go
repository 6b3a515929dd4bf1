package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names used by the Mongo backend.
const (
	videosCollection           = "videos"
	uploadersCollection        = "uploaders"
	statisticsCollection       = "statistics"
	statisticMembersCollection = "statistic_members"
)

// MongoConfig configures the Mongo backend.
type MongoConfig struct {
	URI      string
	Database string
	// Timeout bounds every operation issued through the client.
	Timeout time.Duration
}

// MongoStore is the document store backend.
type MongoStore struct {
	client     *mongo.Client
	db         *mongo.Database
	videos     *MongoVideoRepository
	uploaders  *MongoUploaderRepository
	statistics *MongoStatisticRepository
}

// OpenMongoStore connects to Mongo and ensures the catalog indexes exist.
func OpenMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetTimeout(cfg.Timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	store := NewMongoStore(client, cfg.Database)
	if err := store.EnsureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

// NewMongoStore wraps an existing client.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	videos := &MongoVideoRepository{
		videos:    db.Collection(videosCollection),
		uploaders: db.Collection(uploadersCollection),
	}
	return &MongoStore{
		client:    client,
		db:        db,
		videos:    videos,
		uploaders: &MongoUploaderRepository{coll: db.Collection(uploadersCollection)},
		statistics: &MongoStatisticRepository{
			coll:    db.Collection(statisticsCollection),
			members: db.Collection(statisticMembersCollection),
			videos:  videos,
		},
	}
}

// EnsureIndexes creates the unique keys and query indexes the catalog
// relies on. The unique keys back the duplicate-creation guarantees.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		videosCollection: {
			{
				Keys:    bson.D{{Key: "extractor", Value: 1}, {Key: "id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{
					{Key: "extractor", Value: 1},
					{Key: "uploader", Value: 1},
					{Key: "uploadDate", Value: -1},
				},
			},
			{Keys: bson.D{{Key: "uploadDate", Value: -1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "tags", Value: 1}}},
			{Keys: bson.D{{Key: "categories", Value: 1}}},
			{Keys: bson.D{{Key: "hashtags", Value: 1}}},
		},
		uploadersCollection: {
			{
				Keys:    bson.D{{Key: "extractor", Value: 1}, {Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		statisticsCollection: {
			{
				Keys:    bson.D{{Key: "accessKey", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		statisticMembersCollection: {
			{
				Keys:    bson.D{{Key: "accessKey", Value: 1}, {Key: "video", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}

	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

// Videos returns the video repository.
func (s *MongoStore) Videos() VideoRepository { return s.videos }

// Uploaders returns the uploader repository.
func (s *MongoStore) Uploaders() UploaderRepository { return s.uploaders }

// Statistics returns the statistic repository.
func (s *MongoStore) Statistics() StatisticRepository { return s.statistics }

// Ping checks the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
