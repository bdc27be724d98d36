package execution

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineQueueFIFO(t *testing.T) {
	q := NewLineQueue()
	for i := 0; i < 3; i++ {
		q.Push(Line{Stream: Stdout, Text: string(rune('a' + i)), Index: i})
	}
	q.Close()
	require.Equal(t, 4, q.Len())

	for i := 0; i < 3; i++ {
		line, eos, ok := q.TryPop()
		require.True(t, ok)
		require.False(t, eos)
		assert.Equal(t, i, line.Index)
	}
	_, eos, ok := q.TryPop()
	require.True(t, ok)
	require.True(t, eos, "sentinel must come last")

	_, _, ok = q.TryPop()
	require.False(t, ok)
}

func TestLineQueueDropsAfterClose(t *testing.T) {
	q := NewLineQueue()
	q.Close()
	q.Close()
	q.Push(Line{Text: "late"})
	require.Equal(t, 1, q.Len())
}

func TestLineQueuePopTimeout(t *testing.T) {
	q := NewLineQueue()
	start := time.Now()
	_, _, ok := q.Pop(50 * time.Millisecond)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLineQueuePopWakesOnPush(t *testing.T) {
	q := NewLineQueue()
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push(Line{Text: "hello"})
	}()
	start := time.Now()
	line, eos, ok := q.Pop(5 * time.Second)
	require.True(t, ok)
	require.False(t, eos)
	require.Equal(t, "hello", line.Text)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestLineQueueReadySignal(t *testing.T) {
	q := NewLineQueue()
	select {
	case <-q.Ready():
		t.Fatal("ready before any push")
	default:
	}
	q.Push(Line{Text: "x"})
	q.Push(Line{Text: "y"})
	select {
	case <-q.Ready():
	default:
		t.Fatal("no ready signal after push")
	}
}

func TestLineQueueConcurrentProducer(t *testing.T) {
	const n = 10000
	q := NewLineQueue()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(Line{Index: i})
		}
		q.Close()
	}()

	next := 0
	for {
		line, eos, ok := q.Pop(time.Second)
		require.True(t, ok, "producer stalled")
		if eos {
			break
		}
		require.Equal(t, next, line.Index)
		next++
	}
	wg.Wait()
	require.Equal(t, n, next)
}
