package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sessionkeeper-go/internal/config"
	"sessionkeeper-go/internal/monitoring"
	"sessionkeeper-go/internal/storage"
)

// RedisStore keeps username → cookie blob in one hash, the layout other
// consumers of the cookies already read. Write times live in a sibling hash.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	tsKey  string
	order  []string
	owned  bool
}

// NewRedisStore wraps an existing client. The caller keeps ownership.
func NewRedisStore(client redis.UniversalClient, key string, order []string) *RedisStore {
	if key == "" {
		key = config.DefaultRedisKey
	}
	return &RedisStore{client: client, key: key, tsKey: key + ":updated_at", order: order}
}

// DialRedisStore connects using cfg and owns the connection.
func DialRedisStore(ctx context.Context, cfg config.RedisConfig, order []string) (*RedisStore, error) {
	client, err := storage.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := NewRedisStore(client, cfg.Key, order)
	s.owned = true
	return s, nil
}

// Client exposes the connection for collaborators sharing it, such as the
// code relay.
func (s *RedisStore) Client() redis.UniversalClient { return s.client }

func (s *RedisStore) GetAll(ctx context.Context) (map[string]Credential, error) {
	out := map[string]Credential{}
	err := monitoring.TrackStoreOp(ctx, "redis", "get_all", func(ctx context.Context) error {
		var blobs, stamps *redis.MapStringStringCmd
		_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
			blobs = p.HGetAll(ctx, s.key)
			stamps = p.HGetAll(ctx, s.tsKey)
			return nil
		})
		if err != nil {
			return fmt.Errorf("read credentials: %w", err)
		}
		ts := stamps.Val()
		for user, blob := range blobs.Val() {
			out[user] = Credential{Username: user, Tokens: Decode(blob), UpdatedAt: parseTime(ts[user])}
		}
		return nil
	})
	return out, err
}

func (s *RedisStore) Get(ctx context.Context, username string) (Credential, error) {
	var cred Credential
	err := monitoring.TrackStoreOp(ctx, "redis", "get", func(ctx context.Context) error {
		blob, err := s.client.HGet(ctx, s.key, username).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read credential: %w", err)
		}
		ts, _ := s.client.HGet(ctx, s.tsKey, username).Result()
		cred = Credential{Username: username, Tokens: Decode(blob), UpdatedAt: parseTime(ts)}
		return nil
	})
	return cred, err
}

func (s *RedisStore) Set(ctx context.Context, cred Credential) error {
	if err := validate(cred); err != nil {
		return err
	}
	cred = stamp(cred)
	return monitoring.TrackStoreOp(ctx, "redis", "set", func(ctx context.Context) error {
		_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, s.key, cred.Username, cred.Blob(s.order))
			p.HSet(ctx, s.tsKey, cred.Username, cred.UpdatedAt.Format(time.RFC3339Nano))
			return nil
		})
		if err != nil {
			return fmt.Errorf("write credential: %w", err)
		}
		return nil
	})
}

func (s *RedisStore) Delete(ctx context.Context, username string) error {
	return monitoring.TrackStoreOp(ctx, "redis", "delete", func(ctx context.Context) error {
		_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HDel(ctx, s.key, username)
			p.HDel(ctx, s.tsKey, username)
			return nil
		})
		if err != nil {
			return fmt.Errorf("delete credential: %w", err)
		}
		return nil
	})
}

func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
