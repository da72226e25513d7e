// Package credential stores the captured session tokens per account and
// checks whether a stored token set still authenticates.
package credential

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"sessionkeeper-go/internal/config"
)

// ErrNotFound is returned by Get for an account with no credential.
var ErrNotFound = errors.New("credential: not found")

// Credential is the opaque token set of one account. A refresh replaces it
// wholesale.
type Credential struct {
	Username  string
	Tokens    map[string]string
	UpdatedAt time.Time
}

// Blob renders the token set as a cookie header value.
func (c Credential) Blob(order []string) string { return Encode(c.Tokens, order) }

// Encode renders tokens as "name=value; ..." with names in order first and
// any others after them, sorted.
func Encode(tokens map[string]string, order []string) string {
	parts := make([]string, 0, len(tokens))
	seen := make(map[string]bool, len(order))
	for _, n := range order {
		if v, ok := tokens[n]; ok && !seen[n] {
			parts = append(parts, n+"="+v)
			seen[n] = true
		}
	}
	var rest []string
	for n := range tokens {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	for _, n := range rest {
		parts = append(parts, n+"="+tokens[n])
	}
	return strings.Join(parts, "; ")
}

// Decode parses a cookie header value. Malformed pairs are skipped.
func Decode(blob string) map[string]string {
	tokens := map[string]string{}
	for _, item := range strings.Split(blob, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(item), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		tokens[name] = strings.TrimSpace(value)
	}
	return tokens
}

// Store persists one credential per account.
type Store interface {
	GetAll(ctx context.Context) (map[string]Credential, error)
	Get(ctx context.Context, username string) (Credential, error)
	// Set replaces the account's credential atomically.
	Set(ctx context.Context, cred Credential) error
	Delete(ctx context.Context, username string) error
	Close() error
}

// NewStore builds the store selected by cfg.Storage.Backend.
func NewStore(ctx context.Context, cfg *config.Config) (Store, error) {
	order := cfg.Login.TokenNames
	switch strings.ToLower(cfg.Storage.Backend) {
	case "", "redis":
		return DialRedisStore(ctx, cfg.Storage.Redis, order)
	case "file":
		return NewFileStore(cfg.Storage.File, order), nil
	case "mongodb", "mongo":
		return NewMongoStore(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database, order)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func validate(cred Credential) error {
	if strings.TrimSpace(cred.Username) == "" {
		return errors.New("credential: empty username")
	}
	if len(cred.Tokens) == 0 {
		return fmt.Errorf("credential: no tokens for %s", cred.Username)
	}
	return nil
}

func stamp(cred Credential) Credential {
	if cred.UpdatedAt.IsZero() {
		cred.UpdatedAt = time.Now()
	}
	cred.UpdatedAt = cred.UpdatedAt.UTC()
	return cred
}
