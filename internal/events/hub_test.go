package events

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub()
	var got []Event
	unsubscribe := hub.Subscribe(TopicRefreshOutcome, func(_ context.Context, ev Event) {
		got = append(got, ev)
	})
	hub.Subscribe(TopicRunFinished, func(context.Context, Event) {
		t.Error("handler of another topic called")
	})
	require.Equal(t, 1, hub.Subscribers(TopicRefreshOutcome))

	hub.Publish(context.Background(), TopicRefreshOutcome, "alice", map[string]string{"run_id": "r1"})
	require.Len(t, got, 1)
	require.Equal(t, TopicRefreshOutcome, got[0].Topic)
	require.Equal(t, "alice", got[0].Payload)
	require.Equal(t, "r1", got[0].Metadata["run_id"])
	require.False(t, got[0].Timestamp.IsZero())

	unsubscribe()
	require.Zero(t, hub.Subscribers(TopicRefreshOutcome))
	hub.Publish(context.Background(), TopicRefreshOutcome, "bob", nil)
	require.Len(t, got, 1)
}

func TestNilHubDropsEvents(t *testing.T) {
	var hub *Hub
	require.NotPanics(t, func() {
		hub.Publish(context.Background(), TopicAccountStatus, nil, nil)
	})
}

func TestHubConcurrentPublish(t *testing.T) {
	hub := NewHub()
	var (
		mu    sync.Mutex
		count int
	)
	hub.Subscribe(TopicRefreshOutcome, func(context.Context, Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Publish(context.Background(), TopicRefreshOutcome, nil, nil)
		}()
	}
	wg.Wait()
	require.Equal(t, 20, count)
}

func TestHubOrderAndPanicIsolation(t *testing.T) {
	hub := NewHub()
	var order []string
	hub.Subscribe(TopicAccountStatus, func(context.Context, Event) { order = append(order, "first") })
	hub.Subscribe(TopicAccountStatus, func(context.Context, Event) { panic("bad subscriber") })
	cancel := hub.Subscribe(TopicAccountStatus, func(context.Context, Event) { order = append(order, "third") })

	require.NotPanics(t, func() { hub.Publish(context.Background(), TopicAccountStatus, nil, nil) })
	require.Equal(t, []string{"first", "third"}, order)

	cancel()
	cancel()
	require.Equal(t, 2, hub.Subscribers(TopicAccountStatus))
}
