package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sessionkeeper-go/internal/config"
	"sessionkeeper-go/internal/events"
	"sessionkeeper-go/internal/logging"
	"sessionkeeper-go/internal/refresh"
	"sessionkeeper-go/internal/runtime"
	"sessionkeeper-go/internal/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Refresh on a schedule until interrupted",
		Long: "Runs a refresh pass at once and then every refresh.interval. Edits to the config file " +
			"take effect before the next pass, which starts immediately. Without --mode the daemon runs " +
			"in cron mode and never prompts for codes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}
}

func serve(ctx context.Context, opts *options) error {
	cronDefault(opts, opts.cfg)
	hub := events.NewHub()
	svc := newService(opts.cfg, hub)
	defer svc.Close()

	tm := runtime.NewTaskManager(ctx)
	periodic, err := tm.StartPeriodic("refresh", "credential refresh loop", opts.cfg.Refresh.Interval, svc.run)
	if err != nil {
		return err
	}

	if path := opts.resolvedConfigPath(); path != "" {
		if err := tm.Start("config-watch", "config file watcher", func(ctx context.Context) error {
			return config.Watch(ctx, path, func(cfg *config.Config) {
				opts.apply(cfg)
				cronDefault(opts, cfg)
				if err := logging.Setup(cfg); err != nil {
					log.WithError(err).Warn("failed to apply reloaded log settings")
				}
				svc.reload(cfg)
				hub.Publish(ctx, events.TopicConfigReloaded, cfg, map[string]string{"path": path})
				periodic.Trigger()
			})
		}); err != nil {
			return err
		}
	}

	if addr := opts.cfg.Metrics.Addr; addr != "" {
		stream := server.NewEventStream(hub)
		defer stream.Close()
		engine := server.NewEngine(opts.cfg, server.Options{
			Tasks:   tm,
			Trigger: periodic.Trigger,
			LastRun: svc.lastRun,
			Events:  stream,
		})
		if err := tm.Start("ops", "metrics and health listener", func(ctx context.Context) error {
			return server.Serve(ctx, addr, engine)
		}); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"interval": opts.cfg.Refresh.Interval.String(),
		"mode":     opts.cfg.Mode,
	}).Info("daemon started")
	<-ctx.Done()
	log.Info("shutting down")
	if err := tm.Shutdown(shutdownTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// service owns the app the refresh loop runs against. A reloaded config is
// parked and swapped in at the start of the next run, so a run in flight
// always finishes on the collaborators it started with.
type service struct {
	hub   *events.Hub
	build func(context.Context, *config.Config, *events.Hub) (*app, error)

	mu      sync.Mutex
	cfg     *config.Config
	pending *config.Config
	current *app
	last    *refresh.Summary
}

func newService(cfg *config.Config, hub *events.Hub) *service {
	s := &service{
		cfg: cfg,
		hub: hub,
		build: func(ctx context.Context, cfg *config.Config, hub *events.Hub) (*app, error) {
			return newApp(ctx, cfg, hub, nil)
		},
	}
	hub.Subscribe(events.TopicRunFinished, s.recordRun)
	return s
}

func (s *service) reload(cfg *config.Config) {
	s.mu.Lock()
	s.pending = cfg
	s.mu.Unlock()
}

// acquire returns the app for the next run, rebuilding it when a new config
// is pending. A config that fails to wire keeps the previous app.
func (s *service) acquire(ctx context.Context) (*app, error) {
	s.mu.Lock()
	next, cur := s.pending, s.current
	s.pending = nil
	s.mu.Unlock()

	if next == nil && cur != nil {
		return cur, nil
	}
	cfg := next
	if cfg == nil {
		cfg = s.cfg
	}
	a, err := s.build(ctx, cfg, s.hub)
	if err != nil {
		if cur != nil {
			log.WithError(err).Warn("reloaded config could not be wired, keeping the previous one")
			return cur, nil
		}
		return nil, err
	}

	s.mu.Lock()
	s.cfg, s.current = cfg, a
	s.mu.Unlock()
	if cur != nil {
		cur.Close()
	}
	return a, nil
}

func (s *service) run(ctx context.Context) error {
	a, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	_, err = a.orch.Run(ctx)
	return err
}

func (s *service) recordRun(_ context.Context, ev events.Event) {
	sum, ok := ev.Payload.(refresh.Summary)
	if !ok {
		return
	}
	s.mu.Lock()
	s.last = &sum
	s.mu.Unlock()
}

func (s *service) lastRun() (refresh.Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return refresh.Summary{}, false
	}
	return *s.last, true
}

func (s *service) Close() {
	s.mu.Lock()
	cur := s.current
	s.current = nil
	s.mu.Unlock()
	if cur != nil {
		cur.Close()
	}
}

// progress prints one line per finished account, for runs attended from a
// terminal.
func progress(hub *events.Hub, w io.Writer) {
	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, format, args...)
	}
	hub.Subscribe(events.TopicRefreshOutcome, func(_ context.Context, ev events.Event) {
		o, ok := ev.Payload.(refresh.Outcome)
		if !ok {
			return
		}
		mark := "ok"
		if !o.Success {
			mark = "FAIL"
		}
		printf("[%s] %s: %s\n", mark, logging.Account(o.Username), o.Message)
	})
	hub.Subscribe(events.TopicAccountStatus, func(_ context.Context, ev events.Event) {
		ch, ok := ev.Payload.(refresh.StatusChange)
		if !ok {
			return
		}
		printf("[status] %s: %s -> %s\n", logging.Account(ch.Username), ch.From, ch.To)
	})
}
