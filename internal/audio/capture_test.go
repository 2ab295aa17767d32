package audio

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchStallReportsDeadStream(t *testing.T) {
	var last atomic.Int64
	last.Store(time.Now().Add(-time.Minute).UnixNano())

	reported := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)

	go watchStall(&last, 20*time.Millisecond, 5*time.Millisecond, stop, func(err error) {
		reported <- err
	})

	select {
	case err := <-reported:
		var de *DeviceError
		if !errors.As(err, &de) {
			t.Fatalf("reported %T, want *DeviceError", err)
		}
		if de.Op != "stream" {
			t.Errorf("Op = %q, want %q", de.Op, "stream")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stalled stream never reported")
	}
}

func TestWatchStallQuietWhileFramesFlow(t *testing.T) {
	var last atomic.Int64
	last.Store(time.Now().UnixNano())

	reported := make(chan error, 1)
	stop := make(chan struct{})

	go watchStall(&last, 100*time.Millisecond, 10*time.Millisecond, stop, func(err error) {
		reported <- err
	})

	// Keep the timestamp fresh the way the stream callback does.
	for i := 0; i < 20; i++ {
		last.Store(time.Now().UnixNano())
		time.Sleep(10 * time.Millisecond)
	}
	close(stop)

	select {
	case err := <-reported:
		t.Errorf("watchdog reported %v while frames were flowing", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDeviceErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("no such device")
	err := &DeviceError{Op: "select", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("DeviceError does not unwrap to its cause")
	}
	if err.Error() == "" {
		t.Error("empty error string")
	}
}
