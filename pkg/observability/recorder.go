package observability

import (
	"context"
	"time"

	"blueprint-drafts/application/ports"
)

// SessionGauge receives the number of open sessions
type SessionGauge interface {
	RecordActiveSessions(ctx context.Context, count int)
}

// MultiRecorder fans metrics out to several recorders
type MultiRecorder struct {
	recorders []ports.MetricsRecorder
}

// NewMultiRecorder creates a recorder over the non-nil recorders given
func NewMultiRecorder(recorders ...ports.MetricsRecorder) *MultiRecorder {
	m := &MultiRecorder{}
	for _, r := range recorders {
		if r != nil {
			m.recorders = append(m.recorders, r)
		}
	}
	return m
}

// Len returns the number of wrapped recorders
func (m *MultiRecorder) Len() int {
	return len(m.recorders)
}

func (m *MultiRecorder) RecordOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	for _, r := range m.recorders {
		r.RecordOperation(ctx, operation, duration, err)
	}
}

func (m *MultiRecorder) RecordConflicts(ctx context.Context, kind string, count int) {
	for _, r := range m.recorders {
		r.RecordConflicts(ctx, kind, count)
	}
}

func (m *MultiRecorder) RecordPreview(ctx context.Context, ok, stale bool) {
	for _, r := range m.recorders {
		r.RecordPreview(ctx, ok, stale)
	}
}

// RecordActiveSessions forwards to every recorder that tracks sessions
func (m *MultiRecorder) RecordActiveSessions(ctx context.Context, count int) {
	for _, r := range m.recorders {
		if g, ok := r.(SessionGauge); ok {
			g.RecordActiveSessions(ctx, count)
		}
	}
}
