package refresh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInflightSharesConcurrentAttempt(t *testing.T) {
	c := NewInflight()
	release := make(chan struct{})
	started := make(chan struct{})

	var (
		wg    sync.WaitGroup
		first Outcome
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, _, _ = c.Do(context.Background(), "alice", func(context.Context) Outcome {
			close(started)
			<-release
			return Outcome{Username: "alice", Success: true}
		})
	}()
	<-started
	require.True(t, c.Busy("alice"))
	require.False(t, c.Busy("bob"))

	done := make(chan struct{})
	var (
		second Outcome
		shared bool
	)
	go func() {
		defer close(done)
		second, shared, _ = c.Do(context.Background(), "alice", func(context.Context) Outcome {
			t.Error("second attempt must not run")
			return Outcome{}
		})
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	<-done

	require.True(t, first.Success)
	require.True(t, shared)
	require.True(t, second.Success)
	require.False(t, c.Busy("alice"))
}

func TestInflightWaiterHonoursCancel(t *testing.T) {
	c := NewInflight()
	release := make(chan struct{})
	started := make(chan struct{})
	go c.Do(context.Background(), "alice", func(context.Context) Outcome {
		close(started)
		<-release
		return Outcome{}
	})
	<-started
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, shared, err := c.Do(ctx, "alice", func(context.Context) Outcome { return Outcome{} })
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, shared)
}
