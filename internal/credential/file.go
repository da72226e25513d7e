package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"sessionkeeper-go/internal/monitoring"
	"sessionkeeper-go/internal/storage"
)

type fileRecord struct {
	Cookie    string    `json:"cookie"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileStore keeps every credential in one JSON document, rewritten
// atomically on each change.
type FileStore struct {
	path  string
	order []string
	mu    sync.Mutex
}

func NewFileStore(path string, order []string) *FileStore {
	return &FileStore{path: path, order: order}
}

func (s *FileStore) GetAll(ctx context.Context) (map[string]Credential, error) {
	out := map[string]Credential{}
	err := monitoring.TrackStoreOp(ctx, "file", "get_all", func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		recs, err := s.load()
		if err != nil {
			return err
		}
		for user, r := range recs {
			out[user] = Credential{Username: user, Tokens: Decode(r.Cookie), UpdatedAt: r.UpdatedAt}
		}
		return nil
	})
	return out, err
}

func (s *FileStore) Get(ctx context.Context, username string) (Credential, error) {
	var cred Credential
	err := monitoring.TrackStoreOp(ctx, "file", "get", func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		recs, err := s.load()
		if err != nil {
			return err
		}
		r, ok := recs[username]
		if !ok {
			return ErrNotFound
		}
		cred = Credential{Username: username, Tokens: Decode(r.Cookie), UpdatedAt: r.UpdatedAt}
		return nil
	})
	return cred, err
}

func (s *FileStore) Set(ctx context.Context, cred Credential) error {
	if err := validate(cred); err != nil {
		return err
	}
	cred = stamp(cred)
	return monitoring.TrackStoreOp(ctx, "file", "set", func(context.Context) error {
		return s.update(func(recs map[string]fileRecord) {
			recs[cred.Username] = fileRecord{Cookie: cred.Blob(s.order), UpdatedAt: cred.UpdatedAt}
		})
	})
}

func (s *FileStore) Delete(ctx context.Context, username string) error {
	return monitoring.TrackStoreOp(ctx, "file", "delete", func(context.Context) error {
		return s.update(func(recs map[string]fileRecord) { delete(recs, username) })
	})
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) update(fn func(map[string]fileRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load()
	if err != nil {
		return err
	}
	fn(recs)
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	return storage.WriteFileAtomic(s.path, data, 0o600)
}

func (s *FileStore) load() (map[string]fileRecord, error) {
	recs := map[string]fileRecord{}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return recs, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return recs, nil
	}
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", s.path, err)
	}
	return recs, nil
}
