// Package events is the in-process bus refresh outcomes, account status
// changes and config reloads are published on.
package events

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// TopicConfigReloaded carries the new *config.Config after a file change.
	TopicConfigReloaded = "config.reloaded"
	// TopicRefreshOutcome carries one account's refresh.Outcome as it completes.
	TopicRefreshOutcome = "refresh.outcome"
	// TopicAccountStatus carries a refresh.StatusChange.
	TopicAccountStatus = "account.status"
	// TopicRunFinished carries the refresh.Summary of a finished run.
	TopicRunFinished = "refresh.run_finished"
)

type Event struct {
	Topic     string            `json:"topic"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   any               `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type Handler func(context.Context, Event)

// Publisher is what the orchestrator needs from the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any, metadata map[string]string)
}

type subscription struct {
	id      uint64
	handler Handler
}

// Hub delivers synchronously on the publisher's goroutine, in subscription
// order. Handlers may be called concurrently by concurrent publishers and
// must not block. A handler that panics is logged and skipped.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string][]subscription)}
}

// Subscribe registers handler on topic and returns its cancel func.
func (h *Hub) Subscribe(topic string, handler Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.subs[topic] = append(h.subs[topic], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(topic, id) })
	}
}

func (h *Hub) unsubscribe(topic string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[topic]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		rest := make([]subscription, 0, len(subs)-1)
		rest = append(rest, subs[:i]...)
		h.subs[topic] = append(rest, subs[i+1:]...)
		break
	}
	if len(h.subs[topic]) == 0 {
		delete(h.subs, topic)
	}
}

// Publish delivers to the current subscribers of topic. Publishing on a nil
// hub is a no-op.
func (h *Hub) Publish(ctx context.Context, topic string, payload any, metadata map[string]string) {
	if h == nil {
		return
	}
	h.mu.RLock()
	subs := h.subs[topic]
	h.mu.RUnlock()
	if len(subs) == 0 {
		return
	}
	ev := Event{Topic: topic, Timestamp: time.Now().UTC(), Payload: payload, Metadata: metadata}
	for _, s := range subs {
		deliver(ctx, s.handler, ev)
	}
}

func deliver(ctx context.Context, handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"topic": ev.Topic, "panic": r}).Error("event handler panicked")
		}
	}()
	handler(ctx, ev)
}

// Subscribers reports how many handlers listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
