package agent

import (
	"context"
	"sync"

	"github.com/richinex/quill/llm"
)

// EventStream is the event sequence of one model request.
//
// The producer runs in its own goroutine and the stream is read by a single
// consumer:
//
//	stream := step.Stream(ctx)
//	defer stream.Close()
//	for stream.Next() {
//		handle(stream.Event())
//	}
//	if err := stream.Err(); err != nil { ... }
type EventStream struct {
	events  chan llm.StreamEvent
	current llm.StreamEvent

	// Written by the producer before events is closed.
	resp llm.LLMResponse
	err  error

	mu       sync.Mutex
	finished bool
}

func newEventStream(ctx context.Context, produce StreamFunc) *EventStream {
	s := &EventStream{events: make(chan llm.StreamEvent)}
	go func() {
		resp, err := produce(ctx, s.events)
		s.resp, s.err = resp, err
		close(s.events)
	}()
	return s
}

// Next advances to the next event. It returns false once the producer has
// finished, after which Err is valid.
func (s *EventStream) Next() bool {
	ev, ok := <-s.events
	if !ok {
		s.markFinished()
		return false
	}
	s.current = ev
	return true
}

// Event returns the event Next advanced to.
func (s *EventStream) Event() llm.StreamEvent {
	return s.current
}

// Err returns the producer's error once the stream is finished.
func (s *EventStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		return nil
	}
	return s.err
}

// Close discards the remaining events and waits for the producer to return.
// It is safe to call more than once.
func (s *EventStream) Close() error {
	for range s.events {
	}
	s.markFinished()
	return nil
}

func (s *EventStream) markFinished() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
}
