package stats

import (
	"context"
	"time"

	"go.uber.org/zap"

	"shortlink/internal/util"
)

// EndpointRecorder persists one endpoint hit. Implemented by the stats
// repository with an upsert keyed on (endpoint, method).
type EndpointRecorder interface {
	RecordEndpointHit(ctx context.Context, endpoint, method, clientIP string) error
}

// DBSink buffers events and writes them to the database from a single
// worker goroutine. When the buffer is full events are dropped, never
// queued against the request path.
type DBSink struct {
	events   chan Event
	recorder EndpointRecorder
	logger   *zap.Logger
	done     chan struct{}
}

func NewDBSink(recorder EndpointRecorder, logger *zap.Logger) *DBSink {
	s := &DBSink{
		events:   make(chan Event, 1024),
		recorder: recorder,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *DBSink) Record(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Debug("stats buffer full, dropping event",
			util.String("path", ev.Path),
			util.String("method", ev.Method),
		)
	}
}

func (s *DBSink) run() {
	defer close(s.done)
	for ev := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.recorder.RecordEndpointHit(ctx, ev.Path, ev.Method, ev.ClientIP); err != nil {
			s.logger.Warn("failed to record endpoint hit",
				util.String("path", ev.Path),
				util.String("method", ev.Method),
				util.ErrorField(err),
			)
		}
		cancel()
	}
}

// Close stops the worker after draining buffered events.
func (s *DBSink) Close() {
	close(s.events)
	<-s.done
}
