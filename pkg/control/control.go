// Package control carries the interactive start, toggle and stop events
// from their producers (keyboard, daemon API) to the processing loops.
package control

import (
	"fmt"
	"sync/atomic"
)

// Event is a discrete user command.
type Event int

const (
	// EventNone is returned by Poll when nothing is pending.
	EventNone Event = iota
	// EventStart begins or restarts sample capture.
	EventStart
	// EventToggleUndistorted flips the undistorted preview.
	EventToggleUndistorted
	// EventStop ends the running loop.
	EventStop
)

var eventNames = map[Event]string{
	EventNone:              "none",
	EventStart:             "start",
	EventToggleUndistorted: "undistort",
	EventStop:              "stop",
}

func (e Event) String() string {
	if s, ok := eventNames[e]; ok {
		return s
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// ParseEvent is the inverse of String for the user-facing events.
func ParseEvent(s string) (Event, error) {
	for e, name := range eventNames {
		if e != EventNone && name == s {
			return e, nil
		}
	}
	return EventNone, fmt.Errorf("unknown control event %q", s)
}

// DefaultQueueSize bounds the number of pending events.
const DefaultQueueSize = 16

// Queue is a bounded, multi-producer event queue drained by one loop.
type Queue struct {
	ch      chan Event
	dropped atomic.Uint64
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan Event, size)}
}

// Push enqueues e without blocking. It reports false when the queue is full
// and the event was dropped.
func (q *Queue) Push(e Event) bool {
	select {
	case q.ch <- e:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Poll returns the next pending event, or EventNone.
func (q *Queue) Poll() Event {
	if q == nil {
		return EventNone
	}
	select {
	case e := <-q.ch:
		return e
	default:
		return EventNone
	}
}

// Dropped reports how many events were discarded by Push.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
