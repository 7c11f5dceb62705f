package value

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/retroenv/retrogolib/assert"
)

var (
	site1 = Site{Addr: 0x1000, Kind: 1}
	site2 = Site{Addr: 0x1004, Kind: 2}
	site3 = Site{Addr: 0x1008, Kind: 3}
)

func multiNumber(site Site, vals ...uint64) Value {
	var v Value
	for _, val := range vals {
		v.Union(NewNumber(val, site))
	}
	return v
}

func TestUnionLaws(t *testing.T) {
	t.Run("self union is equal", func(t *testing.T) {
		a := multiNumber(site1, 1, 2)
		before := a
		assert.Equal(t, Equal, a.Union(a))
		assert.True(t, a.Equal(before))
	})

	t.Run("subset union contains", func(t *testing.T) {
		a := multiNumber(site1, 1, 2, 3)
		before := a
		assert.Equal(t, Contains, a.Union(NewNumber(2, site1)))
		assert.True(t, a.Equal(before))
	})

	t.Run("superset union is contained", func(t *testing.T) {
		a := NewNumber(2, site1)
		b := multiNumber(site1, 1, 2, 3)
		assert.Equal(t, Contained, a.Union(b))
		assert.True(t, a.Equal(b))
	})

	t.Run("undefined receiver copies", func(t *testing.T) {
		var a Value
		assert.Equal(t, Contained, a.Union(NewNumber(5, site1)))
		n, ok := a.Num()
		assert.True(t, ok)
		assert.Equal(t, uint64(5), n)
	})

	t.Run("disjoint union is not comparable", func(t *testing.T) {
		a := NewNumber(5, site1)
		assert.Equal(t, NotComparable, a.Union(NewNumber(7, site2)))
		assert.Equal(t, Number, a.State())
		want := []Def{
			{Val: 5, Addr: 0x1000, Kind: 1},
			{Val: 7, Addr: 0x1004, Kind: 2},
		}
		if diff := cmp.Diff(want, a.Defs()); diff != "" {
			t.Errorf("defs mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("order independent", func(t *testing.T) {
		inputs := []Value{
			NewNumber(3, site3),
			NewNumber(1, site1),
			multiNumber(site2, 2, 9),
			NewNumber(1, site1),
		}
		var forward, backward Value
		for _, in := range inputs {
			forward.Union(in)
		}
		for i := len(inputs) - 1; i >= 0; i-- {
			backward.Union(inputs[i])
		}
		if diff := cmp.Diff(forward.Defs(), backward.Defs()); diff != "" {
			t.Errorf("union order changed result (-forward +backward):\n%s", diff)
		}
		assert.Equal(t, 4, forward.Len())
	})

	t.Run("incompatible categories", func(t *testing.T) {
		a := NewNumber(5, site2)
		assert.Equal(t, NotComparable, a.Union(NewStackDelta(-8, site1)))
		assert.Equal(t, UnknownIncompatibleMerge, a.State())
		addr, _ := a.DefAddr()
		assert.Equal(t, uint64(0x1000), addr)
	})

	t.Run("dead end is absorbed", func(t *testing.T) {
		a := NewDeadEnd(0x10)
		assert.Equal(t, Contained, a.Union(NewNumber(1, site1)))
		assert.Equal(t, Number, a.State())
		assert.Equal(t, Contains, a.Union(NewDeadEnd(0x20)))
		assert.Equal(t, Number, a.State())
	})

	t.Run("aborted dominates", func(t *testing.T) {
		a := NewNumber(1, site1)
		a.Union(NewAborted(0x20))
		assert.True(t, a.IsAborted())
		assert.Equal(t, Contains, a.Union(NewNumber(2, site2)))
		assert.True(t, a.IsAborted())
	})

	t.Run("unknown wins over known", func(t *testing.T) {
		a := NewNumber(1, site1)
		a.Union(NewUnknownAfter(site2))
		assert.Equal(t, UnknownAfterInstruction, a.State())
	})
}

//nolint:funlen // test functions can be long
func TestPromotionTable(t *testing.T) {
	num := func(n int64) Value { return NewNumber(uint64(n), site1) }
	spd := func(n int64) Value { return NewStackDelta(n, site1) }

	tests := []struct {
		name      string
		result    Value
		wantState State
		wantVal   uint64
	}{
		{"num + num", num(5).Add(num(3), site2), Number, 8},
		{"num - num", num(5).Sub(num(7), site2), Number, uint64(0xFFFFFFFFFFFFFFFE)},
		{"spd + num", spd(-16).Add(num(8), site2), StackDelta, uint64(0xFFFFFFFFFFFFFFF8)},
		{"num + spd", num(8).Add(spd(-16), site2), StackDelta, uint64(0xFFFFFFFFFFFFFFF8)},
		{"spd - num", spd(-16).Sub(num(8), site2), StackDelta, uint64(0xFFFFFFFFFFFFFFE8)},
		{"spd - spd", spd(-8).Sub(spd(-24), site2), Number, 16},
		{"spd and mask", spd(-20).And(num(0xF), site2), Number, 0xC},
		{"spd andnot mask", spd(-20).AndNot(num(0xF), site2), StackDelta, uint64(0xFFFFFFFFFFFFFFE0)},
		{"num or num", num(0xF0).Or(num(0x0F), site2), Number, 0xFF},
		{"num and num", num(0xF0).And(num(0x3C), site2), Number, 0x30},
		{"num xor num", num(0xFF).Xor(num(0x0F), site2), Number, 0xF0},
		{"num andnot num", num(0xFF).AndNot(num(0x0F), site2), Number, 0xF0},
		{"num shl num", num(1).Shl(num(4), site2), Number, 0x10},
		{"num shr num", num(0x80).Shr(num(4), site2), Number, 0x8},
		{"movt", num(0x12345678).Movt(num(0xABCD), site2), Number, 0xABCD5678},
		{"neg", num(1).Neg(site2), Number, uint64(0xFFFFFFFFFFFFFFFF)},
		{"not", num(0).Not(site2), Number, uint64(0xFFFFFFFFFFFFFFFF)},

		{"spd + spd", spd(1).Add(spd(2), site2), UnknownAfterInstruction, 0},
		{"num - spd", num(1).Sub(spd(2), site2), UnknownAfterInstruction, 0},
		{"spd and large mask", spd(-20).And(num(0xFF), site2), UnknownAfterInstruction, 0},
		{"spd and non mask", spd(-20).And(num(0x6), site2), UnknownAfterInstruction, 0},
		{"spd or num", spd(1).Or(num(2), site2), UnknownAfterInstruction, 0},
		{"spd xor num", spd(1).Xor(num(2), site2), UnknownAfterInstruction, 0},
		{"spd shl num", spd(1).Shl(num(2), site2), UnknownAfterInstruction, 0},
		{"spd shr num", spd(1).Shr(num(2), site2), UnknownAfterInstruction, 0},
		{"spd movt num", spd(1).Movt(num(2), site2), UnknownAfterInstruction, 0},
		{"neg spd", spd(1).Neg(site2), UnknownAfterInstruction, 0},
		{"not spd", spd(1).Not(site2), UnknownAfterInstruction, 0},
		{"unknown + num", NewUnknownAtEntry(0).Add(num(1), site2), UnknownAfterInstruction, 0},
		{"dead end + num", NewDeadEnd(0).Add(num(1), site2), UnknownAfterInstruction, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantState, tt.result.State())
			addr, ok := tt.result.DefAddr()
			assert.True(t, ok)
			assert.Equal(t, site2.Addr, addr)
			if tt.result.IsKnown() {
				assert.Equal(t, []uint64{tt.wantVal}, tt.result.Values())
			}
		})
	}
}

func TestMultiValueArithmetic(t *testing.T) {
	t.Run("multi plus unique", func(t *testing.T) {
		a := multiNumber(site1, 1, 2)
		res := a.Add(NewNumber(10, site1), site2)
		assert.Equal(t, []uint64{11, 12}, res.Values())
	})

	t.Run("unique minus multi keeps operand order", func(t *testing.T) {
		a := NewNumber(10, site1)
		res := a.Sub(multiNumber(site1, 1, 2), site2)
		assert.Equal(t, []uint64{8, 9}, res.Values())
	})

	t.Run("both multi", func(t *testing.T) {
		res := multiNumber(site1, 1, 2).Add(multiNumber(site1, 3, 4), site2)
		assert.Equal(t, UnknownAfterInstruction, res.State())
	})

	t.Run("results are deduplicated", func(t *testing.T) {
		res := multiNumber(site1, 0x10, 0x11).Shr(NewNumber(4, site1), site2)
		assert.Equal(t, []uint64{1}, res.Values())
	})
}

func TestExtend(t *testing.T) {
	t.Run("zero extend byte", func(t *testing.T) {
		v := NewNumber(0x1FF, site1).Extend(1, false, 16)
		assert.Equal(t, []uint64{0xFF}, v.Values())
	})

	t.Run("sign extend byte to address width", func(t *testing.T) {
		v := NewNumber(0x80, site1).Extend(1, true, 16)
		assert.Equal(t, []uint64{0xFF80}, v.Values())
	})

	t.Run("stack delta stays signed", func(t *testing.T) {
		v := NewStackDelta(-3, site1).Extend(1, true, 16)
		d, ok := v.Delta()
		assert.True(t, ok)
		assert.Equal(t, int64(-3), d)
	})

	t.Run("extend resorts and deduplicates", func(t *testing.T) {
		v := multiNumber(site1, 0x101, 0x201, 0x05).Extend(1, false, 64)
		assert.Equal(t, []uint64{0x01, 0x05}, v.Values())
	})

	t.Run("truncate", func(t *testing.T) {
		v := NewNumber(0x12345, site1).Truncate(16)
		assert.Equal(t, []uint64{0x2345}, v.Values())
	})
}

func TestHelpers(t *testing.T) {
	v := NewNumber(5, site1).AddNum(3)
	n, ok := v.Num()
	assert.True(t, ok)
	assert.Equal(t, uint64(8), n)
	addr, _ := v.DefAddr()
	assert.Equal(t, site1.Addr, addr)

	v = NewNumber(5, site1).AddNumAt(-1, site2)
	addr, _ = v.DefAddr()
	assert.Equal(t, site2.Addr, addr)
	assert.Equal(t, []uint64{4}, v.Values())

	assert.Equal(t, []uint64{0x20}, NewNumber(2, site1).ShiftLeft(4).Values())
	assert.Equal(t, []uint64{0x2}, NewNumber(0x20, site1).ShiftRight(4).Values())

	multi := NewNumber(7, site1)
	multi.Union(NewNumber(2, site2))
	v = multi.MulNumAt(5, site2)
	assert.Equal(t, []uint64{10, 35}, v.Values())
	addr, _ = v.DefAddr()
	assert.Equal(t, site2.Addr, addr)
	assert.Equal(t, UnknownAfterInstruction, NewUnknownLoop(1).MulNumAt(5, site2).State())

	sp := InitialStackPointer(0x400)
	d, ok := sp.Delta()
	assert.True(t, ok)
	assert.Equal(t, int64(0), d)
	assert.True(t, sp.AllFlags(AtAddress))
	assert.False(t, NewNumber(1, site1).AllFlags(AtAddress))
}

func TestString(t *testing.T) {
	tests := []struct {
		value Value
		want  string
	}{
		{Value{}, "undefined"},
		{NewNumber(8, site2), "num 0x8 @0x1004"},
		{NewStackDelta(-4, site1), "spd -4 @0x1000"},
		{multiNumber(site1, 5, 7), "num {0x5 @0x1000, 0x7 @0x1000}"},
		{NewUnknownLoop(0x20), "unknown across loop @0x20"},
		{NewDeadEnd(0x30), "dead end @0x30"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.value.String())
	}
}
