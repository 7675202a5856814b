package ticker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTickerDeliversAfterResume(t *testing.T) {
	tick := New(10 * time.Millisecond)
	defer tick.Stop()

	select {
	case <-tick.Ticks():
		t.Fatal("tick delivered before Resume")
	case <-time.After(30 * time.Millisecond):
	}

	tick.Resume()
	select {
	case <-tick.Ticks():
	case <-time.After(time.Second):
		t.Fatal("no tick after Resume")
	}
}

func TestPauseStopsTicks(t *testing.T) {
	tick := New(10 * time.Millisecond)
	defer tick.Stop()

	tick.Resume()
	select {
	case <-tick.Ticks():
	case <-time.After(time.Second):
		t.Fatal("no tick after Resume")
	}

	tick.Pause()
	// Drain anything already buffered, then expect silence.
	select {
	case <-tick.Ticks():
	default:
	}
	select {
	case <-tick.Ticks():
		t.Fatal("tick delivered after Pause")
	case <-time.After(50 * time.Millisecond):
	}

	// Resume after Pause works again.
	tick.Resume()
	select {
	case <-tick.Ticks():
	case <-time.After(time.Second):
		t.Fatal("no tick after second Resume")
	}
	require.NotNil(t, tick.Ticks())
}
