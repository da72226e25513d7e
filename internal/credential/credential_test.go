package credential

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"sessionkeeper-go/internal/config"
	"sessionkeeper-go/internal/storage/storagetest"
)

func TestEncodeFollowsOrder(t *testing.T) {
	tokens := map[string]string{"flash": "f", "zz": "1", "pin": "p", "aa": "2", "3AB9D23F7A4B3CSS": "c"}
	blob := Encode(tokens, config.DefaultTokenNames)
	require.Equal(t, "pin=p; 3AB9D23F7A4B3CSS=c; flash=f; aa=2; zz=1", blob)
	require.Equal(t, tokens, Decode(blob))
}

func TestDecodeSkipsMalformedPairs(t *testing.T) {
	got := Decode(" pin = p ;;noequals; =x; a=b=c ")
	require.Equal(t, map[string]string{"pin": "p", "a": "b=c"}, got)
	require.Empty(t, Decode(""))
}

// exerciseStore runs the common contract against s.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)

	_, err = s.Get(ctx, "alice")
	require.True(t, errors.Is(err, ErrNotFound))

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.Set(ctx, Credential{Username: "alice", Tokens: map[string]string{"pin": "a", "flash": "f"}, UpdatedAt: at}))
	require.NoError(t, s.Set(ctx, Credential{Username: "bob", Tokens: map[string]string{"pin": "b"}}))

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"pin": "a", "flash": "f"}, got.Tokens)
	require.WithinDuration(t, at, got.UpdatedAt, time.Millisecond)

	// A refresh replaces the token set wholesale.
	require.NoError(t, s.Set(ctx, Credential{Username: "alice", Tokens: map[string]string{"pin": "a2"}}))
	got, err = s.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"pin": "a2"}, got.Tokens)
	require.True(t, got.UpdatedAt.After(at))

	all, err = s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "b", all["bob"].Tokens["pin"])

	require.Error(t, s.Set(ctx, Credential{Username: "carol"}))
	require.Error(t, s.Set(ctx, Credential{Tokens: map[string]string{"pin": "x"}}))

	require.NoError(t, s.Delete(ctx, "bob"))
	require.NoError(t, s.Delete(ctx, "nobody"))
	all, err = s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore(client, "", config.DefaultTokenNames)
	exerciseStore(t, s)

	// Other consumers read the plain hash.
	blob := mr.HGet(config.DefaultRedisKey, "alice")
	require.Equal(t, "pin=a2", blob)
	require.NoError(t, s.Close())
	require.NoError(t, client.Ping(context.Background()).Err(), "borrowed client stays open")
}

func TestDialRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	defer mr.Close()

	s, err := DialRedisStore(context.Background(), config.RedisConfig{Addr: mr.Addr(), Key: "CK"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), Credential{Username: "u", Tokens: map[string]string{"pin": "1"}}))
	require.Equal(t, "pin=1", mr.HGet("CK", "u"))
	require.NotEmpty(t, mr.HGet("CK:updated_at", "u"))
	require.NoError(t, s.Close())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "credentials.json")
	exerciseStore(t, NewFileStore(path, config.DefaultTokenNames))

	// Survives a reopen.
	got, err := NewFileStore(path, nil).Get(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "a2", got.Tokens["pin"])
}

func TestNewStoreRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = "etcd"
	_, err := NewStore(context.Background(), cfg)
	require.Error(t, err)

	cfg.Storage.Backend = "file"
	cfg.Storage.File = filepath.Join(t.TempDir(), "c.json")
	s, err := NewStore(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, s)
}

func TestMongoStore_Integration(t *testing.T) {
	uri := storagetest.Mongo(t)
	s, err := NewMongoStore(context.Background(), uri, "it_credentials", config.DefaultTokenNames)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, s)
}
