package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sessionkeeper-go/internal/monitoring"
	"sessionkeeper-go/internal/storage"
)

type mongoRecord struct {
	Username  string    `bson:"username"`
	Cookie    string    `bson:"cookie"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps one document per account in the "credentials" collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	order  []string
}

func NewMongoStore(ctx context.Context, uri, database string, order []string) (*MongoStore, error) {
	client, db, err := storage.ConnectMongo(ctx, uri, database)
	if err != nil {
		return nil, err
	}
	coll := db.Collection("credentials")
	ictx, cancel := storage.WithTimeout(ctx, storage.DefaultTimeout)
	defer cancel()
	_, err = coll.Indexes().CreateOne(ictx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return &MongoStore{client: client, coll: coll, order: order}, nil
}

func (s *MongoStore) GetAll(ctx context.Context) (map[string]Credential, error) {
	out := map[string]Credential{}
	err := monitoring.TrackStoreOp(ctx, "mongodb", "get_all", func(ctx context.Context) error {
		ctx, cancel := storage.WithTimeout(ctx, storage.DefaultTimeout)
		defer cancel()
		cur, err := s.coll.Find(ctx, bson.M{})
		if err != nil {
			return fmt.Errorf("read credentials: %w", err)
		}
		defer cur.Close(ctx)
		for cur.Next(ctx) {
			var r mongoRecord
			if err := cur.Decode(&r); err != nil {
				return fmt.Errorf("decode credential: %w", err)
			}
			out[r.Username] = Credential{Username: r.Username, Tokens: Decode(r.Cookie), UpdatedAt: r.UpdatedAt}
		}
		return cur.Err()
	})
	return out, err
}

func (s *MongoStore) Get(ctx context.Context, username string) (Credential, error) {
	var cred Credential
	err := monitoring.TrackStoreOp(ctx, "mongodb", "get", func(ctx context.Context) error {
		ctx, cancel := storage.WithTimeout(ctx, storage.DefaultTimeout)
		defer cancel()
		var r mongoRecord
		err := s.coll.FindOne(ctx, bson.M{"username": username}).Decode(&r)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read credential: %w", err)
		}
		cred = Credential{Username: r.Username, Tokens: Decode(r.Cookie), UpdatedAt: r.UpdatedAt}
		return nil
	})
	return cred, err
}

func (s *MongoStore) Set(ctx context.Context, cred Credential) error {
	if err := validate(cred); err != nil {
		return err
	}
	cred = stamp(cred)
	return monitoring.TrackStoreOp(ctx, "mongodb", "set", func(ctx context.Context) error {
		ctx, cancel := storage.WithTimeout(ctx, storage.DefaultTimeout)
		defer cancel()
		doc := mongoRecord{Username: cred.Username, Cookie: cred.Blob(s.order), UpdatedAt: cred.UpdatedAt}
		_, err := s.coll.ReplaceOne(ctx, bson.M{"username": cred.Username}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("write credential: %w", err)
		}
		return nil
	})
}

func (s *MongoStore) Delete(ctx context.Context, username string) error {
	return monitoring.TrackStoreOp(ctx, "mongodb", "delete", func(ctx context.Context) error {
		ctx, cancel := storage.WithTimeout(ctx, storage.DefaultTimeout)
		defer cancel()
		if _, err := s.coll.DeleteOne(ctx, bson.M{"username": username}); err != nil {
			return fmt.Errorf("delete credential: %w", err)
		}
		return nil
	})
}

func (s *MongoStore) Close() error {
	ctx, cancel := storage.WithTimeout(context.Background(), storage.DefaultTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
