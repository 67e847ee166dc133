package stats

import "time"

// Event is one observed endpoint hit.
type Event struct {
	Path     string    `json:"path"`
	Method   string    `json:"method"`
	ClientIP string    `json:"client_ip"`
	At       time.Time `json:"at"`
}

// Sink accepts fire-and-forget usage events. Record must never block the
// request path and must never fail it.
type Sink interface {
	Record(ev Event)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Record(Event) {}

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

func (m MultiSink) Record(ev Event) {
	for _, s := range m {
		s.Record(ev)
	}
}
