// Package otp acquires one-time verification codes for the login code
// gate. Providers differ in where the code comes from; all of them enforce
// the same format and never block past their deadline.
package otp

import (
	"context"
	"strings"
	"time"
	"unicode"

	"sessionkeeper-go/internal/config"
)

// Mode selects a provider.
type Mode string

const (
	ModeManual   Mode = "manual"
	ModeWebhook  Mode = "webhook"
	ModeStore    Mode = "store"
	ModeDisabled Mode = "disabled"
)

// ParseMode normalizes a mode name. Legacy spellings are accepted.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manual", "manual_input":
		return ModeManual, true
	case "webhook":
		return ModeWebhook, true
	case "store", "redis":
		return ModeStore, true
	case "disabled", "no", "off":
		return ModeDisabled, true
	}
	return "", false
}

// Channel is how the site delivers the code to the phone.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelVoice Channel = "voice"
)

func (c Channel) label() string {
	if c == ChannelVoice {
		return "语音"
	}
	return "短信"
}

// Request is one code wait.
type Request struct {
	Account    string
	Phone      string
	Enterprise string
	Channel    Channel
	// Mode and WebhookURL are per-account overrides; empty uses the default.
	Mode       Mode
	WebhookURL string
}

// Provider acquires a code for a request.
type Provider interface {
	Acquire(ctx context.Context, req Request) (string, error)
}

// Format is the code predicate: exactly Length ASCII digits.
type Format struct {
	Length int
}

// DefaultFormat matches the six digit codes the site sends.
var DefaultFormat = Format{Length: 6}

func (f Format) Valid(code string) bool {
	n := f.Length
	if n <= 0 {
		n = DefaultFormat.Length
	}
	if len(code) != n {
		return false
	}
	for _, r := range code {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Settings is the provider-facing slice of the configuration.
type Settings struct {
	DefaultMode    Mode
	WebhookURL     string
	WebhookTimeout time.Duration
	ManualTimeout  time.Duration
	PollInterval   time.Duration
	PollAttempts   int
	Format         Format
	Enterprise     string
	Cron           bool
}

func SettingsFromConfig(cfg *config.Config) Settings {
	mode, ok := ParseMode(cfg.Code.DefaultMode)
	if !ok {
		mode = ModeManual
	}
	return Settings{
		DefaultMode:    mode,
		WebhookURL:     cfg.Code.WebhookURL,
		WebhookTimeout: cfg.Code.WebhookTimeout,
		ManualTimeout:  cfg.Code.ManualTimeout,
		PollInterval:   cfg.Code.PollInterval,
		PollAttempts:   cfg.Code.PollAttempts,
		Format:         Format{Length: cfg.Code.Length},
		Enterprise:     cfg.Enterprise,
		Cron:           cfg.Cron(),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
