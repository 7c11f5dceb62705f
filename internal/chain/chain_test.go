package chain

import (
	"testing"

	"github.com/retroenv/regtrack/internal/operand"
	"github.com/retroenv/regtrack/internal/value"
	"github.com/retroenv/retrogolib/assert"
	"github.com/sirkon/deepequal"
)

var (
	r1 = operand.NewRegister(1, 4, false)
	r2 = operand.NewRegister(2, 4, false)
)

type chainView struct {
	Start uint64
	End   uint64
	Value string
}

func snapshot(s *Store, op operand.Operand) []chainView {
	var views []chainView
	for _, c := range s.Chains(op) {
		views = append(views, chainView{Start: c.Span.Start, End: c.Span.End, Value: c.Value.String()})
	}
	return views
}

func num(v, addr uint64) value.Value {
	return value.NewNumber(v, value.Site{Addr: addr})
}

func TestLookup(t *testing.T) {
	s := New()
	s.Insert(r1, Span{Start: 0x11, End: 0x20}, num(5, 0x10), false, nil, nil)
	s.Insert(r1, Span{Start: 0x31, End: 0x40}, num(7, 0x30), false, nil, nil)
	s.Insert(r2, Span{Start: 0x00, End: 0x40}, num(9, 0x00), false, nil, nil)

	tests := []struct {
		op    operand.Operand
		addr  uint64
		found bool
		want  uint64
	}{
		{r1, 0x10, false, 0},
		{r1, 0x11, true, 5},
		{r1, 0x20, true, 5},
		{r1, 0x21, false, 0},
		{r1, 0x35, true, 7},
		{r2, 0x21, true, 9},
		{operand.NewRegister(3, 4, false), 0x21, false, 0},
		{r1.WithWidth(2, false), 0x11, false, 0},
	}
	for _, tt := range tests {
		c, ok := s.Lookup(tt.op, tt.addr)
		assert.Equal(t, tt.found, ok)
		if !tt.found {
			continue
		}
		n, ok := c.Value.Num()
		assert.True(t, ok)
		assert.Equal(t, tt.want, n)
	}
	assert.Equal(t, 3, s.Len())
}

func TestInsertOverlap(t *testing.T) {
	t.Run("same value inside existing chain", func(t *testing.T) {
		s := New()
		id := s.Insert(r1, Span{Start: 0x10, End: 0x30}, num(5, 0x0F), false, nil, nil)
		again := s.Insert(r1, Span{Start: 0x18, End: 0x20}, num(5, 0x0F), false, nil, nil)
		assert.Equal(t, id, again)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("conflicting chains are replaced", func(t *testing.T) {
		s := New()
		s.Insert(r1, Span{Start: 0x10, End: 0x20}, num(5, 0x0F), false, nil, nil)
		s.Insert(r1, Span{Start: 0x28, End: 0x30}, num(6, 0x27), false, nil, nil)
		s.Insert(r1, Span{Start: 0x1C, End: 0x2C}, num(9, 0x1B), false, nil, nil)

		deepequal.SideBySide(t, "chains", []chainView{
			{Start: 0x1C, End: 0x2C, Value: "num 0x9 @0x1b"},
		}, snapshot(s, r1))
	})
}

func TestInvalidate(t *testing.T) {
	s := New()
	base := s.Insert(r1, Span{Start: 0x11, End: 0x20}, num(5, 0x10), false, nil, nil)
	derived := s.Insert(r2, Span{Start: 0x25, End: 0x30}, num(8, 0x24), false, []ID{base}, nil)
	s.Insert(r2, Span{Start: 0x41, End: 0x50}, num(1, 0x40), false, []ID{derived}, nil)
	s.Insert(r1, Span{Start: 0x61, End: 0x70}, num(2, 0x60), false, nil, []Span{{Start: 0x80, End: 0x90}})
	s.Insert(r1, Span{Start: 0xA0, End: 0xB0}, num(3, 0x9F), false, nil, nil)
	assert.Equal(t, 5, s.Len())

	dropped := s.Invalidate(0x18)
	assert.Equal(t, 3, dropped)
	_, ok := s.Lookup(r2, 0x45)
	assert.False(t, ok)

	dropped = s.Invalidate(0x85)
	assert.Equal(t, 1, dropped)

	deepequal.SideBySide(t, "remaining", []chainView{
		{Start: 0xA0, End: 0xB0, Value: "num 0x3 @0x9f"},
	}, snapshot(s, r1))
	assert.Equal(t, 0, len(s.Chains(r2)))
	assert.Equal(t, []operand.Operand{r1}, s.Operands())

	assert.Equal(t, 0, s.Invalidate(0x200))
	s.Reset()
	assert.Equal(t, 0, s.Len())
}

func TestInsertKeepsEvictedDependencies(t *testing.T) {
	s := New()
	base := s.Insert(r1, Span{Start: 0x11, End: 0x20}, num(5, 0x10), false, nil, nil)
	derived := s.Insert(r2, Span{Start: 0x25, End: 0x30}, num(8, 0x24), false, []ID{base}, []Span{{Start: 0x80, End: 0x90}})

	// evicts base and with it derived, which the new value was computed from
	s.Insert(r1, Span{Start: 0x18, End: 0x28}, num(6, 0x17), true, []ID{derived}, nil)
	assert.Equal(t, 1, s.Len())

	c, ok := s.Lookup(r1, 0x18)
	assert.True(t, ok)
	assert.True(t, c.Loop)
	assert.Empty(t, c.Deps)
	assert.Equal(t, []Span{
		{Start: 0x25, End: 0x30},
		{Start: 0x80, End: 0x90},
		{Start: 0x11, End: 0x20},
	}, c.Walked)

	assert.Equal(t, 1, s.Invalidate(0x85))
	assert.Equal(t, 0, s.Len())

	t.Run("forgotten evictions", func(t *testing.T) {
		s.Forget()
		s.Insert(r2, Span{Start: 0x40, End: 0x50}, num(1, 0x3F), false, []ID{derived}, nil)
		c, ok := s.Lookup(r2, 0x40)
		assert.True(t, ok)
		assert.Empty(t, c.Walked)
		assert.Empty(t, c.Deps)
	})
}

func TestInsertInvalidPanics(t *testing.T) {
	defer func() {
		assert.NotNil(t, recover())
	}()
	New().Insert(operand.Operand{}, Span{Start: 1, End: 2}, num(1, 0), false, nil, nil)
}
