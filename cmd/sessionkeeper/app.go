package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"sessionkeeper-go/internal/account"
	"sessionkeeper-go/internal/config"
	"sessionkeeper-go/internal/credential"
	"sessionkeeper-go/internal/events"
	"sessionkeeper-go/internal/login"
	"sessionkeeper-go/internal/notify"
	"sessionkeeper-go/internal/otp"
	"sessionkeeper-go/internal/page"
	"sessionkeeper-go/internal/refresh"
	"sessionkeeper-go/internal/storage"
	"sessionkeeper-go/internal/vision"
)

// app is one fully wired set of collaborators built from a config snapshot.
type app struct {
	cfg      *config.Config
	registry account.Registry
	store    credential.Store
	checker  *credential.HTTPValidityChecker
	orch     *refresh.Orchestrator

	closers []func() error
}

// newApp connects the backends and assembles the orchestrator. stdin feeds
// manual code entry in interactive mode.
func newApp(ctx context.Context, cfg *config.Config, hub *events.Hub, stdin io.Reader) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.registry, err = account.NewRegistry(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("account registry: %w", err)
	}
	a.closers = append(a.closers, a.registry.Close)

	a.store, err = credential.NewStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("credential store: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)
	a.checker = credential.NewHTTPValidityChecker(cfg, nil)

	codes := a.codeProvider(ctx, stdin)

	var glyphs *vision.GlyphSet
	if dir := cfg.Challenge.GlyphDir; dir != "" {
		glyphs, err = vision.LoadGlyphSet(dir)
		if err != nil {
			log.WithError(err).WithField("dir", dir).Warn("glyph references unavailable, character challenges will be refreshed")
			glyphs, err = nil, nil
		}
	}

	launcher, err := page.NewLauncher(cfg)
	if err != nil {
		return nil, err
	}
	if c, ok := launcher.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	a.orch, err = refresh.New(cfg, refresh.Deps{
		Registry: a.registry,
		Store:    a.store,
		Checker:  a.checker,
		Sessions: login.NewBuilder(cfg, codes, glyphs),
		Launcher: launcher,
		Notifier: notify.New(cfg),
		Events:   hub,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// codeProvider wires the code sources. The store relay shares the credential
// store's redis connection when there is one.
func (a *app) codeProvider(ctx context.Context, stdin io.Reader) otp.Provider {
	settings := otp.SettingsFromConfig(a.cfg)

	var manual *otp.Manual
	if !a.cfg.Cron() && stdin != nil {
		manual = otp.NewManual(stdin, os.Stderr, a.cfg.Code.ManualTimeout, settings.Format)
	}

	var client redis.Cmdable
	if rs, ok := a.store.(*credential.RedisStore); ok {
		client = rs.Client()
	} else if a.cfg.Storage.Redis.Addr != "" {
		c, err := storage.NewRedisClient(ctx, a.cfg.Storage.Redis)
		if err != nil {
			log.WithError(err).Warn("code relay unavailable, store mode disabled")
		} else {
			client = c
			a.closers = append(a.closers, c.Close)
		}
	}
	var poll *otp.StorePoll
	if client != nil {
		poll = otp.NewStorePoll(client, settings.Enterprise, settings.PollInterval, settings.PollAttempts, settings.Format)
	}
	return otp.NewSelector(settings, manual, poll)
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.WithError(err).Debug("close")
		}
	}
	a.closers = nil
}
