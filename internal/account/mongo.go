package account

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sessionkeeper-go/internal/monitoring"
	"sessionkeeper-go/internal/storage"
)

// MongoRegistry keeps accounts in the "accounts" collection, one document
// per username.
type MongoRegistry struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoRegistry connects and ensures the username index.
func NewMongoRegistry(ctx context.Context, uri, database string) (*MongoRegistry, error) {
	client, db, err := storage.ConnectMongo(ctx, uri, database)
	if err != nil {
		return nil, err
	}
	coll := db.Collection("accounts")
	ictx, cancel := storage.WithTimeout(ctx, storage.DefaultTimeout)
	defer cancel()
	_, err = coll.Indexes().CreateMany(ictx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "enterprise", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return &MongoRegistry{client: client, coll: coll}, nil
}

func (r *MongoRegistry) ListAccounts(ctx context.Context, enterprise string) ([]Account, error) {
	var out []Account
	err := monitoring.TrackStoreOp(ctx, "mongodb", "list_accounts", func(ctx context.Context) error {
		ctx, cancel := storage.WithTimeout(ctx, storage.DefaultTimeout)
		defer cancel()
		filter := bson.M{}
		if enterprise != "" {
			filter["enterprise"] = enterprise
		}
		cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		defer cur.Close(ctx)
		for cur.Next(ctx) {
			a := Account{Enabled: true}
			if err := cur.Decode(&a); err != nil {
				return fmt.Errorf("decode account: %w", err)
			}
			a.normalize(enterprise)
			out = append(out, a)
		}
		return cur.Err()
	})
	return out, err
}

func (r *MongoRegistry) UpdateStatus(ctx context.Context, username string, status Status) error {
	return monitoring.TrackStoreOp(ctx, "mongodb", "update_status", func(ctx context.Context) error {
		ctx, cancel := storage.WithTimeout(ctx, storage.DefaultTimeout)
		defer cancel()
		res, err := r.coll.UpdateOne(ctx, bson.M{"username": username}, bson.M{"$set": bson.M{"status": string(status)}})
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, username)
		}
		return nil
	})
}

// Upsert replaces the document for a.Username.
func (r *MongoRegistry) Upsert(ctx context.Context, a Account) error {
	a.normalize(a.Enterprise)
	return monitoring.TrackStoreOp(ctx, "mongodb", "upsert_account", func(ctx context.Context) error {
		ctx, cancel := storage.WithTimeout(ctx, storage.DefaultTimeout)
		defer cancel()
		_, err := r.coll.ReplaceOne(ctx, bson.M{"username": a.Username}, a, options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("upsert account: %w", err)
		}
		return nil
	})
}

func (r *MongoRegistry) Close() error {
	ctx, cancel := storage.WithTimeout(context.Background(), storage.DefaultTimeout)
	defer cancel()
	return r.client.Disconnect(ctx)
}
