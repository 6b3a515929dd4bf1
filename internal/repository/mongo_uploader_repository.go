package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iconidentify/vidshelf/internal/catalog"
	"github.com/iconidentify/vidshelf/internal/domain"
)

// labelDocument is the stored form of a frequency table row.
type labelDocument struct {
	Name  string `bson:"name"`
	Count int64  `bson:"count"`
}

func labelDocuments(t domain.FrequencyTable) []labelDocument {
	out := make([]labelDocument, 0, len(t))
	for _, row := range t {
		out = append(out, labelDocument{Name: row.Name, Count: row.Count})
	}
	return out
}

// frequencyTable converts stored rows, kept in first-seen order, into a
// ranked table.
func frequencyTable(rows []labelDocument) domain.FrequencyTable {
	t := make([]domain.LabelCount, 0, len(rows))
	for _, row := range rows {
		t = append(t, domain.LabelCount{Name: row.Name, Count: row.Count})
	}
	return catalog.Rank(t)
}

// uploaderDocument is the stored form of an uploader.
type uploaderDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Extractor  string             `bson:"extractor"`
	UploaderID string             `bson:"id"`
	Name       string             `bson:"name"`
	Tags       []labelDocument    `bson:"tags"`
	Categories []labelDocument    `bson:"categories"`
	Hashtags   []labelDocument    `bson:"hashtags"`
}

func (d *uploaderDocument) toDomain() *domain.Uploader {
	return &domain.Uploader{
		DocumentID: d.ID.Hex(),
		Extractor:  d.Extractor,
		ID:         d.UploaderID,
		Name:       d.Name,
		Tags:       frequencyTable(d.Tags),
		Categories: frequencyTable(d.Categories),
		Hashtags:   frequencyTable(d.Hashtags),
	}
}

// MongoUploaderRepository implements UploaderRepository on a Mongo
// collection.
type MongoUploaderRepository struct {
	coll *mongo.Collection
}

// Get retrieves an uploader by extractor and name.
func (r *MongoUploaderRepository) Get(ctx context.Context, extractor, name string) (*domain.Uploader, error) {
	var doc uploaderDocument
	err := r.coll.FindOne(ctx, bson.D{
		{Key: "extractor", Value: extractor},
		{Key: "name", Value: name},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrUploaderNotFound
	}
	if err != nil {
		return nil, domain.NewStorageError("uploaders.get", err)
	}
	return doc.toDomain(), nil
}

// Save upserts an uploader by (extractor, name).
func (r *MongoUploaderRepository) Save(ctx context.Context, u *domain.Uploader) error {
	doc := &uploaderDocument{
		Extractor:  u.Extractor,
		UploaderID: u.ID,
		Name:       u.Name,
		Tags:       labelDocuments(u.Tags),
		Categories: labelDocuments(u.Categories),
		Hashtags:   labelDocuments(u.Hashtags),
	}

	opts := options.FindOneAndReplace().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var saved uploaderDocument
	err := r.coll.FindOneAndReplace(ctx, bson.D{
		{Key: "extractor", Value: u.Extractor},
		{Key: "name", Value: u.Name},
	}, doc, opts).Decode(&saved)
	if err != nil {
		return domain.NewStorageError("uploaders.save", err)
	}

	u.DocumentID = saved.ID.Hex()
	return nil
}
