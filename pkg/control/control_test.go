package control

import (
	"context"
	"strings"
	"testing"
)

func TestQueue(t *testing.T) {
	q := NewQueue(2)
	if got := q.Poll(); got != EventNone {
		t.Fatalf("Poll() on empty queue = %v", got)
	}
	if !q.Push(EventStart) || !q.Push(EventToggleUndistorted) {
		t.Fatalf("Push() rejected event on non-full queue")
	}
	if q.Push(EventStop) {
		t.Errorf("Push() on full queue succeeded")
	}
	if q.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", q.Dropped())
	}
	for _, want := range []Event{EventStart, EventToggleUndistorted, EventNone} {
		if got := q.Poll(); got != want {
			t.Errorf("Poll() = %v, want %v", got, want)
		}
	}
}

func TestNilQueuePoll(t *testing.T) {
	var q *Queue
	if q.Poll() != EventNone {
		t.Errorf("nil queue Poll() != EventNone")
	}
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		in      string
		want    Event
		wantErr bool
	}{
		{in: "start", want: EventStart},
		{in: "undistort", want: EventToggleUndistorted},
		{in: "stop", want: EventStop},
		{in: "none", wantErr: true},
		{in: "Start", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseEvent(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseEvent(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseEvent(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReadKeys(t *testing.T) {
	q := NewQueue(8)
	// Keys after the escape are not read.
	if err := ReadKeys(context.Background(), strings.NewReader("xgu\x1bg"), q); err != nil {
		t.Fatalf("ReadKeys() error = %v", err)
	}
	for _, want := range []Event{EventStart, EventToggleUndistorted, EventStop, EventNone} {
		if got := q.Poll(); got != want {
			t.Errorf("Poll() = %v, want %v", got, want)
		}
	}
}

func TestReadKeysCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := NewQueue(1)
	if err := ReadKeys(ctx, strings.NewReader("g"), q); err != nil {
		t.Fatalf("ReadKeys() error = %v", err)
	}
	if q.Poll() != EventNone {
		t.Errorf("canceled reader queued an event")
	}
}
