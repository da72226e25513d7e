// Package server is the ops HTTP listener of the daemon: prometheus
// metrics, health, task state, a live event stream and a manual refresh
// trigger.
package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"sessionkeeper-go/internal/config"
	mw "sessionkeeper-go/internal/middleware"
	"sessionkeeper-go/internal/refresh"
	"sessionkeeper-go/internal/runtime"
	"sessionkeeper-go/internal/version"
)

// Tasks is the read side of runtime.TaskManager.
type Tasks interface {
	ListTasks() []*runtime.Task
	GetStats() runtime.TaskStats
}

// Options are the daemon hooks the routes read from.
type Options struct {
	Tasks Tasks
	// Trigger queues an early refresh run and reports whether one was queued.
	Trigger func() bool
	// LastRun returns the summary of the most recent finished run.
	LastRun func() (refresh.Summary, bool)
	// TriggerLimit bounds POST /api/refresh per client. Zero uses one per 10s.
	TriggerLimit rate.Limit
	// Events backs GET /api/events; nil leaves the route out.
	Events *EventStream
}

type taskView struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"start_time"`
	Error     string    `json:"error,omitempty"`
	Runs      int       `json:"runs,omitempty"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// NewEngine builds the gin engine with the standard middleware chain.
func NewEngine(cfg *config.Config, opts Options) *gin.Engine {
	if !cfg.Log.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	_ = engine.SetTrustedProxies(nil)
	engine.Use(mw.Recovery(), mw.RequestID(), mw.Metrics(), mw.RequestLogger())

	engine.GET("/healthz", opts.health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	api.GET("/tasks", opts.tasks)
	api.GET("/runs/last", opts.lastRun)
	if opts.Events != nil {
		api.GET("/events", mw.BearerToken(cfg.Metrics.Token), opts.Events.serve)
	}

	limit := opts.TriggerLimit
	if limit == 0 {
		limit = rate.Every(10 * time.Second)
	}
	api.POST("/refresh", mw.BearerToken(cfg.Metrics.Token), mw.RateLimiter(limit, 1), opts.trigger)
	return engine
}

func (o Options) views() []taskView {
	if o.Tasks == nil {
		return nil
	}
	tasks := o.Tasks.ListTasks()
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	out := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		v := taskView{
			Name:      t.Name,
			Status:    string(t.Status),
			StartTime: t.StartTime,
			Runs:      t.Runs,
			LastRun:   t.LastRun,
		}
		if t.Error != nil {
			v.Error = t.Error.Error()
		}
		if t.LastError != nil {
			v.LastError = t.LastError.Error()
		}
		out = append(out, v)
	}
	return out
}

// health is 503 when any task has failed.
func (o Options) health(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if o.Tasks != nil && o.Tasks.GetStats().Failed > 0 {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"version": version.String(),
		"tasks":   o.views(),
	})
}

func (o Options) tasks(c *gin.Context) {
	var stats runtime.TaskStats
	if o.Tasks != nil {
		stats = o.Tasks.GetStats()
	}
	c.JSON(http.StatusOK, gin.H{"tasks": o.views(), "stats": stats})
}

func (o Options) lastRun(c *gin.Context) {
	if o.LastRun == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "no run finished yet"}})
		return
	}
	sum, ok := o.LastRun()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "no run finished yet"}})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (o Options) trigger(c *gin.Context) {
	if o.Trigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"message": "refresh loop not running"}})
		return
	}
	queued := o.Trigger()
	log.WithFields(log.Fields{
		"queued":    queued,
		"client_ip": c.ClientIP(),
	}).Info("refresh requested over the ops api")
	c.JSON(http.StatusAccepted, gin.H{"queued": queued})
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("ops listener started")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}
