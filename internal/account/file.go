package account

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"sessionkeeper-go/internal/monitoring"
	"sessionkeeper-go/internal/storage"
)

const stateSuffix = ".state.json"

// accountsFile is the on-disk layout. Both a bare list and an
// "accounts:" document are accepted.
type accountsFile struct {
	Accounts []yaml.Node `yaml:"accounts"`
}

// FileRegistry reads accounts from a YAML file the operator maintains and
// keeps status transitions in a sidecar JSON file, so the operator's file is
// never rewritten.
type FileRegistry struct {
	path       string
	statePath  string
	enterprise string

	mu sync.Mutex
}

// NewFileRegistry returns a registry over path. enterprise tags accounts
// that carry none.
func NewFileRegistry(path, enterprise string) *FileRegistry {
	return &FileRegistry{path: path, statePath: path + stateSuffix, enterprise: enterprise}
}

func (r *FileRegistry) ListAccounts(ctx context.Context, enterprise string) ([]Account, error) {
	var out []Account
	err := monitoring.TrackStoreOp(ctx, "file", "list_accounts", func(context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		all, err := r.load()
		if err != nil {
			return err
		}
		states, err := r.loadStates()
		if err != nil {
			return err
		}
		for _, a := range all {
			if st, ok := states[a.Username]; ok {
				a.Status = st
			}
			if enterprise == "" || a.Enterprise == enterprise {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

func (r *FileRegistry) UpdateStatus(ctx context.Context, username string, status Status) error {
	return monitoring.TrackStoreOp(ctx, "file", "update_status", func(context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		all, err := r.load()
		if err != nil {
			return err
		}
		found := false
		for _, a := range all {
			if a.Username == username {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrNotFound, username)
		}
		states, err := r.loadStates()
		if err != nil {
			return err
		}
		states[username] = status
		data, err := json.MarshalIndent(states, "", "  ")
		if err != nil {
			return err
		}
		return storage.WriteFileAtomic(r.statePath, data, 0o600)
	})
}

func (r *FileRegistry) Close() error { return nil }

func (r *FileRegistry) load() ([]Account, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	var entries []yaml.Node
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "[") {
		err = yaml.Unmarshal(data, &entries)
	} else {
		var doc accountsFile
		err = yaml.Unmarshal(data, &doc)
		entries = doc.Accounts
	}
	if err != nil {
		return nil, fmt.Errorf("parse accounts %s: %w", r.path, err)
	}

	out := make([]Account, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for i := range entries {
		// enabled defaults to true when omitted
		a := Account{Enabled: true}
		if err := entries[i].Decode(&a); err != nil {
			return nil, fmt.Errorf("parse account #%d in %s: %w", i+1, r.path, err)
		}
		if strings.TrimSpace(a.Username) == "" {
			continue
		}
		if seen[a.Username] {
			log.WithField("file", r.path).Warn("duplicate account entry ignored")
			continue
		}
		seen[a.Username] = true
		a.normalize(r.enterprise)
		out = append(out, a)
	}
	return out, nil
}

func (r *FileRegistry) loadStates() (map[string]Status, error) {
	states := map[string]Status{}
	data, err := os.ReadFile(r.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return states, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("parse account state %s: %w", r.statePath, err)
	}
	return states, nil
}
