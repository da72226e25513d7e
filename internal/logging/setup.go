package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"sessionkeeper-go/internal/config"
)

var (
	logMux       sync.Mutex
	logFile      *os.File
	maskAccounts = true
)

// Setup points the global logrus logger at cfg. A later call replaces the
// previous settings and closes the previous log file; a nil cfg restores
// JSON at info on stdout.
func Setup(cfg *config.Config) error {
	var lc config.LogConfig
	if cfg != nil {
		lc = cfg.Log
	}
	level, err := levelOf(lc)
	if err != nil {
		return err
	}

	logMux.Lock()
	defer logMux.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	out := io.Writer(os.Stdout)
	if lc.File != "" {
		if err := os.MkdirAll(filepath.Dir(lc.File), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(lc.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logFile = f
		out = io.MultiWriter(os.Stdout, f)
	}

	log.SetOutput(out)
	log.SetFormatter(formatterOf(lc))
	log.SetLevel(level)
	maskAccounts = cfg == nil || cfg.MaskAccounts()
	return nil
}

func levelOf(lc config.LogConfig) (log.Level, error) {
	if lc.Debug {
		return log.DebugLevel, nil
	}
	if lc.Level == "" {
		return log.InfoLevel, nil
	}
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		return log.InfoLevel, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

func formatterOf(lc config.LogConfig) log.Formatter {
	format := lc.Format
	if format == "" && lc.Debug {
		format = "text"
	}
	if format == "text" {
		return &log.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano}
	}
	return &log.JSONFormatter{TimestampFormat: time.RFC3339Nano}
}
