package otp

import (
	"context"

	apperrors "sessionkeeper-go/internal/errors"
	"sessionkeeper-go/internal/logging"
	"sessionkeeper-go/internal/monitoring"
)

// Selector routes a request to the provider for its effective mode. It is
// itself a Provider; a nil provider field means that mode is unavailable.
type Selector struct {
	Default Mode
	// Cron runs cannot prompt, so manual falls back to the store relay.
	Cron    bool
	Format  Format
	Manual  Provider
	Webhook Provider
	Store   Provider
}

// NewSelector wires the standard providers from settings. manual may be nil
// in non-interactive processes; store may be nil when no redis is configured.
func NewSelector(s Settings, manual *Manual, store *StorePoll) *Selector {
	sel := &Selector{
		Default: s.DefaultMode,
		Cron:    s.Cron,
		Format:  s.Format,
		Webhook: NewWebhook(s.WebhookURL, s.WebhookTimeout, s.Format),
	}
	if manual != nil {
		sel.Manual = manual
	}
	if store != nil {
		sel.Store = store
	}
	return sel
}

// Resolve returns the effective mode for req.
func (s *Selector) Resolve(req Request) (Mode, error) {
	mode := s.Default
	if req.Mode != "" {
		m, ok := ParseMode(string(req.Mode))
		if !ok {
			return "", apperrors.New(apperrors.KindCodeSource, "unknown code mode %q", req.Mode)
		}
		mode = m
	}
	if mode == "" {
		mode = ModeManual
	}
	if s.Cron && mode == ModeManual {
		mode = ModeStore
	}
	if req.Channel == ChannelVoice && mode != ModeManual && mode != ModeStore && mode != ModeDisabled {
		return mode, apperrors.New(apperrors.KindCodeSource, "voice codes cannot be acquired in %s mode", mode)
	}
	return mode, nil
}

func (s *Selector) provider(mode Mode) Provider {
	switch mode {
	case ModeManual:
		return s.Manual
	case ModeWebhook:
		return s.Webhook
	case ModeStore:
		return s.Store
	}
	return nil
}

func (s *Selector) Acquire(ctx context.Context, req Request) (code string, err error) {
	mode, err := s.Resolve(req)
	if err != nil {
		return "", err
	}
	entry := logging.ForAccount(req.Account).WithField("mode", mode).WithField("channel", req.Channel)
	if mode == ModeDisabled {
		entry.Info("verification code acquisition disabled")
		return "", apperrors.New(apperrors.KindCodeSource, "code acquisition disabled")
	}
	p := s.provider(mode)
	if p == nil {
		return "", apperrors.New(apperrors.KindCodeSource, "%s code provider not available", mode)
	}

	defer func() { monitoring.RecordCodeAcquisition(string(mode), err) }()
	entry.Info("waiting for verification code")
	code, err = p.Acquire(ctx, req)
	if err != nil {
		entry.WithError(err).Warn("verification code not acquired")
		return "", err
	}
	if !s.Format.Valid(code) {
		return "", apperrors.CodeFormat(code)
	}
	return code, nil
}
