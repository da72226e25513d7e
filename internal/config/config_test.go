package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "jd", cfg.Enterprise)
	require.Equal(t, ModeInteractive, cfg.Mode)
	require.Equal(t, 5, cfg.Challenge.RetryBudget)
	require.Equal(t, 60*time.Second, cfg.Code.ManualTimeout)
	require.Equal(t, 5*time.Second, cfg.Code.PollInterval)
	require.Equal(t, 20, cfg.Code.PollAttempts)
	require.Equal(t, 120*time.Second, cfg.Login.LandingTimeout)
	require.Equal(t, 1, cfg.Refresh.Concurrency)
	require.Equal(t, DefaultRequiredTokens, cfg.Login.RequiredTokens)
	require.Equal(t, "#loginname", cfg.Login.Selectors.Username)
	require.True(t, cfg.Headless())
	require.True(t, cfg.MaskAccounts())
	require.False(t, cfg.Cron())
}

func TestLoadYAMLKeepsExplicitFieldsAndFillsTheRest(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", `
mode: cron
browser:
  headless: false
  proxy: socks5://127.0.0.1:1080
login:
  landing_timeout: 30s
  selectors:
    username: "#user"
code:
  default_mode: store
refresh:
  concurrency: 3
notify:
  on_success: false
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.True(t, cfg.Cron())
	require.False(t, cfg.Headless())
	require.Equal(t, "socks5://127.0.0.1:1080", cfg.Browser.Proxy)
	require.Equal(t, 30*time.Second, cfg.Login.LandingTimeout)
	require.Equal(t, "#user", cfg.Login.Selectors.Username)
	require.Equal(t, "#nloginpwd", cfg.Login.Selectors.Password)
	require.Equal(t, "store", cfg.Code.DefaultMode)
	require.Equal(t, 3, cfg.Refresh.Concurrency)
	require.False(t, cfg.NotifyOnSuccess())
	require.True(t, cfg.NotifyOnFailure())
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"enterprise":"acme","refresh":{"concurrency":2}}`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "acme", cfg.Enterprise)
	require.Equal(t, 2, cfg.Refresh.Concurrency)
}

func TestLoadRejectsUnknownEnumerations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"mode", "mode: sometimes\n"},
		{"code mode", "code:\n  default_mode: carrier-pigeon\n"},
		{"storage", "storage:\n  backend: sqlite\n"},
		{"postgres without dsn", "accounts:\n  backend: postgres\n"},
		{"required token unknown", "login:\n  required_tokens: [nope]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeFile(t, t.TempDir(), "c.yaml", tt.body)
			_, err := Load(p)
			require.Error(t, err)
		})
	}
}

func TestInvalidProxyIsDropped(t *testing.T) {
	p := writeFile(t, t.TempDir(), "c.yaml", "browser:\n  proxy: ftp://example.com\n")
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Empty(t, cfg.Browser.Proxy)
}

func TestValidateProxy(t *testing.T) {
	require.NoError(t, ValidateProxy("http://user:pw@10.0.0.1:8080"))
	require.NoError(t, ValidateProxy("socks5://127.0.0.1:1080"))
	require.Error(t, ValidateProxy("ftp://host"))
	require.Error(t, ValidateProxy("http://"))
}

func TestWatchDeliversReloadedSnapshot(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", "refresh:\n  concurrency: 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go func() { _ = Watch(ctx, p, func(c *Config) { got <- c }) }()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(p, []byte("refresh:\n  concurrency: 4\n"), 0o644))

	select {
	case cfg := <-got:
		require.Equal(t, 4, cfg.Refresh.Concurrency)
	case <-time.After(7 * time.Second):
		t.Fatal("no reload observed")
	}
}
