package ports

import "github.com/nulzo/route-engine/internal/core/domain"

// EventSink receives fallback transitions. Implementations must not block.
type EventSink interface {
	Record(event *domain.FallbackEvent)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Record(*domain.FallbackEvent) {}
