package observer

import (
	"context"
	"sync"

	"github.com/anime-shed/image-editor-go/pkg/models"
)

// DefaultStreamBuffer is the per-subscriber channel capacity
const DefaultStreamBuffer = 64

// StreamObserver fans batch events out to live subscribers such as SSE clients.
// A subscriber whose buffer is full misses the event instead of blocking
// the publisher.
type StreamObserver struct {
	mu      sync.Mutex
	buffer  int
	nextID  int
	subs    map[int]chan models.BatchEvent
	dropped int64
	closed  bool
}

// NewStreamObserver creates a stream observer with the given buffer per subscriber
func NewStreamObserver(buffer int) *StreamObserver {
	if buffer <= 0 {
		buffer = DefaultStreamBuffer
	}
	return &StreamObserver{
		buffer: buffer,
		subs:   make(map[int]chan models.BatchEvent),
	}
}

// Listen registers a subscriber. The returned cancel function closes the
// channel and must be called once the subscriber stops reading.
// After Close, Listen returns an already closed channel.
func (s *StreamObserver) Listen() (<-chan models.BatchEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan models.BatchEvent, s.buffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close ends every subscription so long-lived readers return
func (s *StreamObserver) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// OnEvent forwards the event to every subscriber without blocking
func (s *StreamObserver) OnEvent(ctx context.Context, event models.BatchEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
			s.dropped++
		}
	}
}

// GetObserverName returns the observer name
func (s *StreamObserver) GetObserverName() string {
	return "stream_observer"
}

// Subscribers returns the number of live subscribers
func (s *StreamObserver) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full
func (s *StreamObserver) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
