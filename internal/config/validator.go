package config

import (
	"fmt"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s=%s]: %s", e.Field, e.Value, e.Message)
}

// ValidationResult holds the results of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
	Valid    bool

	proxy string
}

func (r *ValidationResult) AddError(field, value, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Value: value, Message: message})
	r.Valid = false
}

func (r *ValidationResult) AddWarning(field, value, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Value: value, Message: message})
}

var (
	codeModes        = map[string]bool{"manual": true, "webhook": true, "store": true, "disabled": true}
	storageBackends  = map[string]bool{"redis": true, "file": true, "mongodb": true}
	accountsBackends = map[string]bool{"file": true, "postgres": true, "mongodb": true}
)

// Validate checks enumerations and ranges. An unusable proxy is downgraded to
// a warning and dropped rather than failing the load.
func (c *Config) Validate() ValidationResult {
	result := ValidationResult{Valid: true}

	if c.Mode != ModeInteractive && c.Mode != ModeCron {
		result.AddError("mode", c.Mode, "must be interactive or cron")
	}
	if c.Log.Level != "" {
		if _, err := log.ParseLevel(c.Log.Level); err != nil {
			result.AddError("log.level", c.Log.Level, "not a log level")
		}
	}
	if c.Log.Format != "" && c.Log.Format != "json" && c.Log.Format != "text" {
		result.AddError("log.format", c.Log.Format, "must be json or text")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		result.AddError("tracing.sample_ratio", fmt.Sprint(c.Tracing.SampleRatio), "must be between 0 and 1")
	}
	if c.Browser.Driver != DriverChromedp && c.Browser.Driver != DriverPlaywright {
		result.AddError("browser.driver", c.Browser.Driver, "must be chromedp or playwright")
	}
	if !codeModes[c.Code.DefaultMode] {
		result.AddError("code.default_mode", c.Code.DefaultMode, "must be manual, webhook, store or disabled")
	}
	if c.Code.DefaultMode == "webhook" && c.Code.WebhookURL == "" {
		result.AddWarning("code.webhook_url", "", "webhook mode without a global URL; accounts must provide their own")
	}
	if !storageBackends[c.Storage.Backend] {
		result.AddError("storage.backend", c.Storage.Backend, "must be redis, file or mongodb")
	}
	if c.Storage.Backend == "mongodb" && c.Storage.Mongo.URI == "" {
		result.AddError("storage.mongo.uri", "", "required for mongodb backend")
	}
	if !accountsBackends[c.Accounts.Backend] {
		result.AddError("accounts.backend", c.Accounts.Backend, "must be file, postgres or mongodb")
	}
	if c.Accounts.Backend == "postgres" && c.Accounts.PostgresDSN == "" {
		result.AddError("accounts.postgres_dsn", "", "required for postgres backend")
	}
	if c.Accounts.Backend == "mongodb" && c.Accounts.Mongo.URI == "" {
		result.AddError("accounts.mongo.uri", "", "required for mongodb backend")
	}
	if c.Code.Length < 4 || c.Code.Length > 8 {
		result.AddError("code.length", fmt.Sprint(c.Code.Length), "must be between 4 and 8")
	}
	if c.Refresh.Concurrency > 8 {
		result.AddWarning("refresh.concurrency", fmt.Sprint(c.Refresh.Concurrency), "each worker launches a full browser")
	}
	if len(c.Login.RequiredTokens) > 0 {
		known := make(map[string]bool, len(c.Login.TokenNames))
		for _, n := range c.Login.TokenNames {
			known[n] = true
		}
		for _, n := range c.Login.RequiredTokens {
			if !known[n] {
				result.AddError("login.required_tokens", n, "not part of login.token_names")
			}
		}
	}

	result.proxy = c.Browser.Proxy
	if c.Browser.Proxy != "" {
		if err := ValidateProxy(c.Browser.Proxy); err != nil {
			result.AddWarning("browser.proxy", c.Browser.Proxy, "ignoring proxy: "+err.Error())
			result.proxy = ""
		}
	}
	return result
}

// ValidateProxy accepts http, https and socks5 proxy URLs with a host.
func ValidateProxy(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "socks5":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
