package jumpengine

import (
	"context"
)

// mockTracer wraps a tracer and records the added jump targets.
type mockTracer struct {
	Tracer

	added [][2]uint64
	err   error
}

func (m *mockTracer) AddJumpTarget(ctx context.Context, from, target uint64) error {
	m.added = append(m.added, [2]uint64{from, target})
	if m.err != nil {
		return m.err
	}
	return m.Tracer.AddJumpTarget(ctx, from, target)
}
