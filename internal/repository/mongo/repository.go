package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"torrentbridge/internal/domain"
)

// JobRepository journals torrent jobs, one document per callback id.
type JobRepository struct {
	collection *mongo.Collection
}

type jobDoc struct {
	ID             string `bson:"_id"`
	MagnetURI      string `bson:"magnetUri"`
	DestinationDir string `bson:"destinationDir"`
	State          string `bson:"state"`
	FileName       string `bson:"fileName,omitempty"`
	FilePath       string `bson:"filePath,omitempty"`
	Size           int64  `bson:"size"`
	Downloaded     int64  `bson:"downloaded"`
	Uploaded       int64  `bson:"uploaded"`
	CreatedAt      int64  `bson:"createdAt"`
	UpdatedAt      int64  `bson:"updatedAt"`
}

func NewJobRepository(client *mongo.Client, dbName, collectionName string) *JobRepository {
	return &JobRepository{collection: client.Database(dbName).Collection(collectionName)}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *JobRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "state", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

// Upsert replaces the job document, creating it when absent.
func (r *JobRepository) Upsert(ctx context.Context, rec domain.JobRecord) error {
	doc := toDoc(rec)
	_, err := r.collection.ReplaceOne(
		ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *JobRepository) Get(ctx context.Context, id domain.JobID) (domain.JobRecord, error) {
	var doc jobDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.JobRecord{}, domain.ErrNotFound
		}
		return domain.JobRecord{}, err
	}
	return fromDoc(doc), nil
}

// List returns every journaled job, oldest first.
func (r *JobRepository) List(ctx context.Context) ([]domain.JobRecord, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []jobDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	records := make([]domain.JobRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, fromDoc(doc))
	}
	return records, nil
}

func (r *JobRepository) Delete(ctx context.Context, id domain.JobID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func toDoc(rec domain.JobRecord) jobDoc {
	return jobDoc{
		ID:             string(rec.ID),
		MagnetURI:      rec.MagnetURI,
		DestinationDir: rec.DestinationDir,
		State:          string(rec.State),
		FileName:       rec.FileName,
		FilePath:       rec.FilePath,
		Size:           rec.Size,
		Downloaded:     rec.Downloaded,
		Uploaded:       rec.Uploaded,
		CreatedAt:      rec.CreatedAt.Unix(),
		UpdatedAt:      rec.UpdatedAt.Unix(),
	}
}

func fromDoc(doc jobDoc) domain.JobRecord {
	return domain.JobRecord{
		ID:             domain.JobID(doc.ID),
		MagnetURI:      doc.MagnetURI,
		DestinationDir: doc.DestinationDir,
		State:          domain.JobState(doc.State),
		FileName:       doc.FileName,
		FilePath:       doc.FilePath,
		Size:           doc.Size,
		Downloaded:     doc.Downloaded,
		Uploaded:       doc.Uploaded,
		CreatedAt:      timeFromUnix(doc.CreatedAt),
		UpdatedAt:      timeFromUnix(doc.UpdatedAt),
	}
}

func timeFromUnix(value int64) time.Time {
	return time.Unix(value, 0).UTC()
}
