package audit

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	// eventChannelSize is the buffer size for the async event channel.
	// If the channel is full, events are dropped with a warning log.
	eventChannelSize = 256
)

// Event represents an audit event to be logged.
type Event struct {
	Action      string         // e.g. "entry.create", "category.create"
	ContentType string         // e.g. "project", "media"
	EntryID     int64          // id of the affected entry or media row
	Payload     map[string]any // additional context data
}

// Writer persists audit events.
type Writer interface {
	Insert(ctx context.Context, event Event) error
}

// Logger is implemented by Service and by Nop. Components that emit audit
// events depend on this rather than on Service.
type Logger interface {
	Log(ctx context.Context, event Event)
}

// Nop discards every event.
type Nop struct{}

// Log implements Logger.
func (Nop) Log(context.Context, Event) {}

// Service provides asynchronous audit logging. Events are sent to a buffered
// channel and written by a background goroutine, so audit logging never
// blocks or fails API requests.
type Service struct {
	writer       Writer
	log          zerolog.Logger
	eventCh      chan Event
	done         chan struct{}
	droppedCount atomic.Uint64 // count of events dropped due to full channel
}

// NewService creates a new audit Service with the given writer.
// Call Start() to begin processing events, and Shutdown() to drain and stop.
func NewService(writer Writer, log zerolog.Logger) *Service {
	return &Service{
		writer:  writer,
		log:     log.With().Str("component", "audit").Logger(),
		eventCh: make(chan Event, eventChannelSize),
		done:    make(chan struct{}),
	}
}

// Log queues an audit event for asynchronous persistence. It never blocks
// the caller. If the internal channel is full, the event is dropped and a
// warning is logged.
func (s *Service) Log(ctx context.Context, event Event) {
	select {
	case s.eventCh <- event:
	default:
		dropped := s.droppedCount.Add(1)
		s.log.Warn().
			Str("action", event.Action).
			Str("content_type", event.ContentType).
			Int64("entry_id", event.EntryID).
			Uint64("total_dropped", dropped).
			Msg("audit event channel full, dropping event")
	}
}

// Start begins the background goroutine that reads events from the channel
// and writes them. Must be called once after NewService.
func (s *Service) Start() {
	go s.processEvents()
}

// Shutdown closes the channel, drains any remaining events, and waits for
// the background goroutine. If ctx expires first a warning is logged, but
// Shutdown still waits so no write races with process exit.
func (s *Service) Shutdown(ctx context.Context) {
	close(s.eventCh)

	select {
	case <-s.done:
		s.log.Info().Msg("audit service shutdown complete")
	case <-ctx.Done():
		s.log.Warn().Msg("audit service shutdown timeout, still waiting for drain")
		<-s.done
	}
}

func (s *Service) processEvents() {
	defer close(s.done)

	for event := range s.eventCh {
		s.writeEvent(event)
	}
}

// writeEvent stores a single event. Errors are logged but never propagated.
func (s *Service) writeEvent(event Event) {
	// The request context may already be cancelled by now.
	ctx := context.Background()

	if err := s.writer.Insert(ctx, event); err != nil {
		s.log.Error().Err(err).
			Str("action", event.Action).
			Str("content_type", event.ContentType).
			Int64("entry_id", event.EntryID).
			Msg("failed to write audit event")
	}
}

// DroppedCount returns the total number of events dropped since service start.
func (s *Service) DroppedCount() uint64 {
	return s.droppedCount.Load()
}
