package monitoring

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// SlowOpThreshold 慢操作阈值
const SlowOpThreshold = 250 * time.Millisecond

// SlowOp is one store or registry call that exceeded the threshold.
type SlowOp struct {
	Timestamp time.Time     `json:"timestamp"`
	Backend   string        `json:"backend"`
	Operation string        `json:"operation"`
	Duration  time.Duration `json:"duration"`
	Err       string        `json:"error,omitempty"`
}

// StoreOps times backend operations into StoreOperationDuration and keeps a
// bounded ring of slow ones.
type StoreOps struct {
	mu        sync.RWMutex
	threshold time.Duration
	slow      []SlowOp
	maxSize   int
}

func NewStoreOps(threshold time.Duration, maxSize int) *StoreOps {
	if threshold <= 0 {
		threshold = SlowOpThreshold
	}
	if maxSize <= 0 {
		maxSize = 200
	}
	return &StoreOps{threshold: threshold, maxSize: maxSize, slow: make([]SlowOp, 0, maxSize)}
}

// Track runs fn and records its latency under backend/operation.
func (s *StoreOps) Track(ctx context.Context, backend, operation string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)

	StoreOperationDuration.WithLabelValues(backend, operation, resultLabel(err == nil)).Observe(d.Seconds())
	if d < s.threshold {
		return err
	}
	op := SlowOp{Timestamp: start, Backend: backend, Operation: operation, Duration: d}
	if err != nil {
		op.Err = err.Error()
	}
	log.WithFields(log.Fields{"backend": backend, "operation": operation, "duration_ms": d.Milliseconds()}).Warn("slow store operation")

	s.mu.Lock()
	if len(s.slow) >= s.maxSize {
		s.slow = s.slow[1:]
	}
	s.slow = append(s.slow, op)
	s.mu.Unlock()
	return err
}

// Slow returns a copy of the recorded slow operations, oldest first.
func (s *StoreOps) Slow() []SlowOp {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]SlowOp(nil), s.slow...)
}

var globalStoreOps = NewStoreOps(SlowOpThreshold, 200)

// TrackStoreOp uses the process-wide StoreOps.
func TrackStoreOp(ctx context.Context, backend, operation string, fn func(context.Context) error) error {
	return globalStoreOps.Track(ctx, backend, operation, fn)
}
