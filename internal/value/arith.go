package value

import "math/bits"

type arithOp uint8

const (
	opAdd arithOp = iota
	opSub
	opOr
	opAnd
	opXor
	opAndNot
	opShl
	opShr
	opMovt
)

func (o arithOp) apply(l, r uint64) uint64 {
	switch o {
	case opAdd:
		return l + r
	case opSub:
		return l - r
	case opOr:
		return l | r
	case opAnd:
		return l & r
	case opXor:
		return l ^ r
	case opAndNot:
		return l &^ r
	case opShl:
		return l << r
	case opShr:
		return l >> r
	case opMovt:
		return l&0xFFFF | (r&0xFFFF)<<16
	}
	panic("unsupported arithmetic operation")
}

// binary applies the operation entrywise. One side has to be unique, the
// result inherits the entry count of the other side.
func binary(l, r Value, o arithOp, state State, site Site) (Value, bool) {
	var vals []uint64
	switch {
	case len(r.defs) == 1:
		vals = make([]uint64, 0, len(l.defs))
		for _, d := range l.defs {
			vals = append(vals, o.apply(d.Val, r.defs[0].Val))
		}
	case len(l.defs) == 1:
		vals = make([]uint64, 0, len(r.defs))
		for _, d := range r.defs {
			vals = append(vals, o.apply(l.defs[0].Val, d.Val))
		}
	default:
		return Value{}, false
	}
	return fromValues(state, vals, site), true
}

func fromValues(state State, vals []uint64, site Site) Value {
	defs := make([]Def, len(vals))
	for i, val := range vals {
		defs[i] = Def{Val: val, Addr: site.Addr, Kind: site.Kind, Flags: site.Flags}
	}
	return Value{state: state, defs: normalize(defs)}
}

func (v Value) result(r Value, o arithOp, state State, site Site) Value {
	res, ok := binary(v, r, o, state, site)
	if !ok {
		return NewUnknownAfter(site)
	}
	return res
}

// Add returns v + r. Numbers add to numbers, a stack delta plus a number
// stays a stack delta.
func (v Value) Add(r Value, site Site) Value {
	switch {
	case v.IsNumber() && r.IsNumber():
		return v.result(r, opAdd, Number, site)
	case v.IsStackDelta() && r.IsNumber(), v.IsNumber() && r.IsStackDelta():
		return v.result(r, opAdd, StackDelta, site)
	}
	return NewUnknownAfter(site)
}

// Sub returns v - r. The difference of two stack deltas is a number.
func (v Value) Sub(r Value, site Site) Value {
	switch {
	case v.IsNumber() && r.IsNumber(), v.IsStackDelta() && r.IsStackDelta():
		return v.result(r, opSub, Number, site)
	case v.IsStackDelta() && r.IsNumber():
		return v.result(r, opSub, StackDelta, site)
	}
	return NewUnknownAfter(site)
}

// Or returns v | r for numbers.
func (v Value) Or(r Value, site Site) Value {
	if v.IsNumber() && r.IsNumber() {
		return v.result(r, opOr, Number, site)
	}
	return NewUnknownAfter(site)
}

// And returns v & r. A stack delta masked with a small 2^n-1 mask gives its
// alignment as a number.
func (v Value) And(r Value, site Site) Value {
	switch {
	case v.IsStackDelta() && isAlignMask(r):
		return v.result(r, opAnd, Number, site)
	case v.IsNumber() && r.IsNumber():
		return v.result(r, opAnd, Number, site)
	}
	return NewUnknownAfter(site)
}

// AndNot returns v &^ r. A stack delta with a small 2^n-1 mask cleared stays
// a stack delta, which is the stack alignment idiom.
func (v Value) AndNot(r Value, site Site) Value {
	switch {
	case v.IsStackDelta() && isAlignMask(r):
		return v.result(r, opAndNot, StackDelta, site)
	case v.IsNumber() && r.IsNumber():
		return v.result(r, opAndNot, Number, site)
	}
	return NewUnknownAfter(site)
}

// Xor returns v ^ r for numbers.
func (v Value) Xor(r Value, site Site) Value {
	if v.IsNumber() && r.IsNumber() {
		return v.result(r, opXor, Number, site)
	}
	return NewUnknownAfter(site)
}

// Shl returns v << r for numbers.
func (v Value) Shl(r Value, site Site) Value {
	if v.IsNumber() && r.IsNumber() {
		return v.result(r, opShl, Number, site)
	}
	return NewUnknownAfter(site)
}

// Shr returns the logical shift v >> r for numbers.
func (v Value) Shr(r Value, site Site) Value {
	if v.IsNumber() && r.IsNumber() {
		return v.result(r, opShr, Number, site)
	}
	return NewUnknownAfter(site)
}

// Movt keeps the low half word of v and replaces the high half word with the
// low half word of r.
func (v Value) Movt(r Value, site Site) Value {
	if v.IsNumber() && r.IsNumber() {
		return v.result(r, opMovt, Number, site)
	}
	return NewUnknownAfter(site)
}

// Neg returns -v for numbers.
func (v Value) Neg(site Site) Value {
	return v.unary(site, func(x uint64) uint64 { return -x })
}

// Not returns ^v for numbers.
func (v Value) Not(site Site) Value {
	return v.unary(site, func(x uint64) uint64 { return ^x })
}

func (v Value) unary(site Site, f func(uint64) uint64) Value {
	if !v.IsNumber() {
		return NewUnknownAfter(site)
	}
	vals := make([]uint64, len(v.defs))
	for i, d := range v.defs {
		vals[i] = f(d.Val)
	}
	return fromValues(Number, vals, site)
}

func isAlignMask(r Value) bool {
	mask, ok := r.Num()
	return ok && mask <= 31 && bits.OnesCount64(mask+1) == 1
}

// AddNum adds n to every entry keeping the defining instructions.
// Unresolved values are returned unchanged.
func (v Value) AddNum(n int64) Value {
	return v.mapVals(func(x uint64) uint64 { return x + uint64(n) })
}

// AddNumAt adds n to every entry and anchors the result at site.
func (v Value) AddNumAt(n int64, site Site) Value {
	if !v.IsKnown() {
		return NewUnknownAfter(site)
	}
	vals := make([]uint64, len(v.defs))
	for i, d := range v.defs {
		vals[i] = d.Val + uint64(n)
	}
	return fromValues(v.state, vals, site)
}

// MulNumAt multiplies every number by n and anchors the result at site.
func (v Value) MulNumAt(n uint64, site Site) Value {
	if !v.IsNumber() {
		return NewUnknownAfter(site)
	}
	vals := make([]uint64, len(v.defs))
	for i, d := range v.defs {
		vals[i] = d.Val * n
	}
	return fromValues(Number, vals, site)
}

// ShiftLeft shifts every number left keeping the defining instructions.
func (v Value) ShiftLeft(n uint) Value {
	if !v.IsNumber() {
		return v
	}
	return v.mapVals(func(x uint64) uint64 { return x << n })
}

// ShiftRight shifts every number right keeping the defining instructions.
func (v Value) ShiftRight(n uint) Value {
	if !v.IsNumber() {
		return v
	}
	return v.mapVals(func(x uint64) uint64 { return x >> n })
}

func (v Value) mapVals(f func(uint64) uint64) Value {
	if !v.IsKnown() {
		return v
	}
	defs := make([]Def, len(v.defs))
	for i, d := range v.defs {
		d.Val = f(d.Val)
		defs[i] = d
	}
	return Value{state: v.state, defs: normalize(defs)}
}

// Extend treats every entry as a value of width bytes and sign or zero
// extends it. Numbers are truncated to addrBits afterwards, stack deltas are
// sign extended from addrBits.
func (v Value) Extend(width int, signed bool, addrBits int) Value {
	if !v.IsKnown() {
		return v
	}
	spd := v.IsStackDelta()
	return v.mapVals(func(x uint64) uint64 {
		x = ExtendSign(x, width, signed)
		if spd {
			return SignExtendBits(x, addrBits)
		}
		return TruncateBits(x, addrBits)
	})
}

// Truncate truncates numbers to addrBits.
func (v Value) Truncate(addrBits int) Value {
	if !v.IsNumber() {
		return v
	}
	return v.mapVals(func(x uint64) uint64 { return TruncateBits(x, addrBits) })
}

// ExtendSign sign or zero extends the lowest width bytes of x.
func ExtendSign(x uint64, width int, signed bool) uint64 {
	if signed {
		return SignExtendBits(x, width*8)
	}
	return TruncateBits(x, width*8)
}

// TruncateBits returns the lowest n bits of x.
func TruncateBits(x uint64, n int) uint64 {
	if n <= 0 || n >= 64 {
		return x
	}
	return x & (1<<n - 1)
}

// SignExtendBits sign extends the lowest n bits of x.
func SignExtendBits(x uint64, n int) uint64 {
	if n <= 0 || n >= 64 {
		return x
	}
	shift := 64 - n
	return uint64(int64(x<<shift) >> shift)
}
