package peer

import (
	"testing"
	"time"
)

func TestEventQueue_PreservesOrder(t *testing.T) {
	q := newEventQueue()
	for i := 0; i < 5; i++ {
		if !q.Push(Event{Kind: EventSignal, Err: nil, Track: TrackInfo{ID: string(rune('a' + i))}}) {
			t.Fatalf("push %d rejected", i)
		}
	}
	for i := 0; i < 5; i++ {
		ev, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d: queue closed", i)
		}
		if want := string(rune('a' + i)); ev.Track.ID != want {
			t.Fatalf("pop %d: got %q, want %q", i, ev.Track.ID, want)
		}
	}
}

func TestEventQueue_CloseUnblocksPop(t *testing.T) {
	q := newEventQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected Pop to report closed queue")
		}
	case <-time.After(time.Second):
		t.Fatalf("Pop did not return after Close")
	}
}

func TestEventQueue_PushAfterClose(t *testing.T) {
	q := newEventQueue()
	q.Close()
	if q.Push(Event{Kind: EventConnected}) {
		t.Fatalf("expected push after close to be rejected")
	}
}
