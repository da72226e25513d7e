package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"sessionkeeper-go/internal/events"
	"sessionkeeper-go/internal/logging"
	"sessionkeeper-go/internal/refresh"
)

const (
	streamHistoryCap = 200
	streamMaxClients = 20
	// streamClientBuffer is how many messages a slow client may lag behind
	// before it is dropped.
	streamClientBuffer = 64
	streamWriteWait    = 10 * time.Second
	streamPongWait     = 60 * time.Second
	streamPingPeriod   = streamPongWait * 9 / 10
)

// ErrTooManyClients is returned when the stream is at its connection limit.
var ErrTooManyClients = errors.New("event stream connection limit reached")

// StreamMessage is one event as sent to stream clients. Accounts are masked.
type StreamMessage struct {
	ID        uint64         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Topic     string         `json:"topic"`
	Account   string         `json:"account,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

type streamClient struct {
	conn *websocket.Conn
	send chan StreamMessage
	once sync.Once
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// EventStream relays hub events to websocket clients of GET /api/events and
// keeps a short history so a reconnecting client can catch up.
type EventStream struct {
	mu         sync.RWMutex
	clients    map[*streamClient]struct{}
	history    []StreamMessage
	seq        uint64
	maxClients int
	closed     bool

	unsubscribe []func()
}

// NewEventStream subscribes to the refresh and config topics of hub.
func NewEventStream(hub *events.Hub) *EventStream {
	s := &EventStream{
		clients:    make(map[*streamClient]struct{}),
		history:    make([]StreamMessage, 0, streamHistoryCap),
		maxClients: streamMaxClients,
	}
	if hub != nil {
		for _, topic := range []string{
			events.TopicRefreshOutcome,
			events.TopicAccountStatus,
			events.TopicRunFinished,
			events.TopicConfigReloaded,
		} {
			s.unsubscribe = append(s.unsubscribe, hub.Subscribe(topic, s.publish))
		}
	}
	return s
}

// Close unsubscribes from the hub and disconnects every client.
func (s *EventStream) Close() {
	for _, cancel := range s.unsubscribe {
		cancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for c := range s.clients {
		c.close()
		delete(s.clients, c)
	}
}

// Clients returns the number of connected clients.
func (s *EventStream) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *EventStream) publish(_ context.Context, ev events.Event) {
	msg, ok := toStreamMessage(ev)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	msg.ID = s.seq
	s.history = append(s.history, msg)
	if len(s.history) > streamHistoryCap {
		s.history = append([]StreamMessage(nil), s.history[len(s.history)-streamHistoryCap:]...)
	}
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			log.Debug("event stream client too slow, disconnecting")
			c.close()
			delete(s.clients, c)
		}
	}
}

// Since returns the buffered messages with an ID above cursor, oldest first.
func (s *EventStream) Since(cursor uint64) []StreamMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, m := range s.history {
		if m.ID > cursor {
			return append([]StreamMessage(nil), s.history[i:]...)
		}
	}
	return nil
}

// attach registers a client and queues the backlog after cursor under the
// same lock, so nothing published in between is lost or duplicated.
func (s *EventStream) attach(conn *websocket.Conn, cursor uint64, replay bool) (*streamClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.clients) >= s.maxClients {
		return nil, ErrTooManyClients
	}
	c := &streamClient{conn: conn, send: make(chan StreamMessage, streamClientBuffer+streamHistoryCap)}
	if replay {
		for _, m := range s.history {
			if m.ID > cursor {
				c.send <- m
			}
		}
	}
	s.clients[c] = struct{}{}
	log.WithField("clients", len(s.clients)).Info("event stream client connected")
	return c, nil
}

func (s *EventStream) detach(c *streamClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		c.close()
		log.WithField("clients", len(s.clients)).Info("event stream client disconnected")
	}
}

// full reports whether a new client would be rejected.
func (s *EventStream) full() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed || len(s.clients) >= s.maxClients
}

var upgrader = websocket.Upgrader{CheckOrigin: sameOrigin}

// sameOrigin accepts non-browser clients and pages served from the ops host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// serve upgrades the request and streams until either side goes away.
// ?since=<id> replays buffered messages newer than id; ?since=0 replays all.
func (s *EventStream) serve(c *gin.Context) {
	var (
		cursor uint64
		replay bool
	)
	if v := c.Query("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "since must be an event id"}})
			return
		}
		cursor, replay = n, true
	}
	if s.full() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"message": ErrTooManyClients.Error()}})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		log.WithError(err).Debug("event stream upgrade failed")
		return
	}
	client, err := s.attach(conn, cursor, replay)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), time.Now().Add(streamWriteWait))
		_ = conn.Close()
		return
	}
	defer s.detach(client)

	go s.readLoop(client)
	s.writeLoop(client)
}

// readLoop discards client frames and detaches on error, which is how a
// closed connection is noticed.
func (s *EventStream) readLoop(c *streamClient) {
	defer s.detach(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *EventStream) writeLoop(c *streamClient) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("event stream write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// toStreamMessage flattens a hub event. Config payloads are reduced to the
// file path so secrets never leave the process.
func toStreamMessage(ev events.Event) (StreamMessage, bool) {
	msg := StreamMessage{Topic: ev.Topic, Timestamp: ev.Timestamp.Format(time.RFC3339)}
	switch p := ev.Payload.(type) {
	case refresh.Outcome:
		msg.Account = logging.Account(p.Username)
		data := map[string]any{
			"run_id":      p.RunID,
			"cause":       p.Cause,
			"success":     p.Success,
			"message":     p.Message,
			"duration_ms": p.Duration.Milliseconds(),
		}
		if p.Reason != "" {
			data["reason"] = p.Reason
		}
		if p.Classification != "" {
			data["classification"] = p.Classification
		}
		msg.Data = data
	case refresh.StatusChange:
		msg.Account = logging.Account(p.Username)
		msg.Data = map[string]any{"from": p.From, "to": p.To}
	case refresh.Summary:
		msg.Data = map[string]any{
			"run_id":      p.RunID,
			"accounts":    p.Accounts,
			"work_set":    p.WorkSet,
			"succeeded":   p.Succeeded,
			"failed":      p.Failed,
			"canceled":    p.Canceled,
			"duration_ms": p.Duration.Milliseconds(),
		}
	default:
		if ev.Topic != events.TopicConfigReloaded {
			return StreamMessage{}, false
		}
		msg.Data = map[string]any{"path": ev.Metadata["path"]}
	}
	return msg, true
}
