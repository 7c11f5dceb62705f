package engine

import (
	"fmt"

	"github.com/retroenv/regtrack/internal/chain"
	"github.com/retroenv/regtrack/internal/operand"
	"github.com/retroenv/regtrack/internal/value"
)

// segment is a part of a block walk where one operand is tracked. A move
// instruction ends a segment and starts a new one for its source operand.
type segment struct {
	op    operand.Operand
	lo    uint64
	hi    uint64
	hasHi bool
	move  Move // move from the next segment's operand into this one
	loop  bool // the move depends on a value that crossed a back edge
}

// walk is the backward walk through one basic block.
type walk struct {
	q         *Query
	depth     int
	guard     CondCode
	guardUsed bool // an instruction was judged by a guard the walk inherited
	segs      []segment

	top      uint64 // highest position of the walk
	lo, hi   uint64 // examined instruction range
	examined bool

	tr trace
}

func (q *Query) newWalk(op operand.Operand, depth int, guard CondCode) *walk {
	return &walk{
		q:     q,
		depth: depth,
		guard: guard,
		segs:  []segment{{op: op}},
	}
}

func (w *walk) op() operand.Operand {
	return w.segs[len(w.segs)-1].op
}

// run walks backwards starting with the pending instructions, or before cur
// if there are none.
func (w *walk) run(cur uint64, pending []uint64) result {
	q := w.q
	if q.aborted {
		return w.abortResult()
	}

	start := cur
	if len(pending) > 0 {
		start = pending[0]
	}
	var known value.Value
	var isKnown bool
	tr := w.hook(func() {
		known, isKnown = q.e.arch.WellKnown(q, start, w.op(), false)
	})
	if isKnown {
		return result{val: known, trace: tr}
	}
	w.tr.depend(tr)

	for {
		var addr uint64
		if len(pending) > 0 {
			addr, pending = pending[0], pending[1:]
		} else {
			// chains hold values without a guard
			if w.guard == Always {
				if c, ok := q.e.chains.Lookup(w.op(), cur); ok {
					w.tr.deps = append(w.tr.deps, c.ID)
					return w.finish(c.Value, cur+1, c.Loop)
				}
			}
			prev, ok := q.prevInBlock(cur)
			if !ok {
				return w.blockStart(cur)
			}
			addr = prev
		}

		v, done, loop := w.examine(addr)
		if q.aborted {
			return w.abortResult()
		}
		if done {
			return w.finish(v, addr+1, loop)
		}
		cur = addr
	}
}

// examine interprets one instruction. It returns true if the instruction
// defines the tracked operand, and whether the value crossed a back edge.
func (w *walk) examine(addr uint64) (value.Value, bool, bool) {
	q := w.q
	w.mark(addr)

	insn, err := q.e.host.Decode(addr)
	if err != nil {
		return value.NewBadInstruction(addr), true, false
	}
	if insn.Size <= 0 {
		panic(fmt.Sprintf("instruction at %#x decoded with size %d", addr, insn.Size))
	}

	cond := q.e.arch.Condition(insn)
	op := w.op()

	var mv Move
	var v value.Value
	var isMove, defines bool
	tr := w.hook(func() {
		mv, isMove = q.e.arch.IsMove(q, op, insn)
		if !isMove {
			v, defines = q.e.arch.Emulate(q, op, insn)
		}
	})
	w.tr.depend(tr)

	if (isMove || defines) && cond.Code != Always && w.guard != Always {
		w.guardUsed = true
	}

	switch {
	case isMove:
		if !cond.Code.Includes(w.guard) || mv.Src.IsEmpty() {
			return value.NewUnknownAfter(insn.Site()), true, tr.loop
		}
		w.retarget(addr, mv, tr.loop)

	case defines:
		if !cond.Code.Includes(w.guard) {
			v = value.NewUnknownAfter(insn.Site())
		}
		return v, true, tr.loop

	default:
		top := &w.segs[len(w.segs)-1]
		if !top.hasHi {
			top.hi, top.hasHi = addr, true
		}
	}

	if cond.Kind == CondModifiesFlags {
		w.guard = Always
	}
	return value.Value{}, false, false
}

// hook runs an architecture hook with the walk as context for nested
// searches and returns what the nested searches depend on.
func (w *walk) hook(f func()) trace {
	q := w.q
	var tr trace
	depth, nested := q.depth, q.nested
	q.depth, q.nested = w.depth, &tr

	f()

	q.depth, q.nested = depth, nested
	return tr
}

func (w *walk) mark(addr uint64) {
	if !w.examined {
		w.lo, w.hi, w.examined = addr, addr, true
		return
	}
	w.lo = min(w.lo, addr)
	w.hi = max(w.hi, addr)
}

func (w *walk) retarget(addr uint64, mv Move, loop bool) {
	top := &w.segs[len(w.segs)-1]
	top.lo = addr + 1
	top.move = mv
	top.loop = loop
	w.segs = append(w.segs, segment{op: mv.Src, hi: addr, hasHi: true})
}

// blockStart handles reaching the first instruction of a basic block.
func (w *walk) blockStart(start uint64) result {
	q := w.q
	op := w.op()
	preds := q.e.host.Predecessors(start)
	funcStart := q.e.host.IsFunctionStart(start)

	if funcStart || len(preds) == 0 {
		var known value.Value
		var isKnown, loop bool
		if funcStart {
			tr := w.hook(func() {
				known, isKnown = q.e.arch.WellKnown(q, start, op, true)
			})
			w.tr.depend(tr)
			loop = tr.loop
		}
		switch {
		case isKnown:
			return w.finish(known, start, loop)
		case funcStart && q.e.isStackPointer(op):
			return w.finish(value.InitialStackPointer(start), start, false)
		case funcStart:
			return w.finish(value.NewUnknownAtEntry(start), start, false)
		default:
			return w.finish(value.NewDeadEnd(start), start, false)
		}
	}

	if w.depth <= 1 {
		q.abort(start)
		return w.abortResult()
	}

	branches := make([]result, 0, len(preds))
	for _, x := range preds {
		if q.isBackEdge(x) {
			// a pure loop adds nothing to the values entering it
			loop := q.scanLoop(x, op)
			w.tr.walked = append(w.tr.walked, loop.walked...)
			if !loop.pure {
				branches = append(branches, result{
					val:   value.NewUnknownLoop(loop.at),
					trace: trace{loop: true},
				})
			}
			continue
		}

		res := q.walkPred(x, op, w.depth-1, w.guard)
		if q.aborted {
			return w.abortResult()
		}
		if res.guarded {
			w.guardUsed = true
		}
		branches = append(branches, res)
	}

	v, loop := w.merge(start, branches)
	return w.finish(v, start, loop)
}

// merge combines the values arriving over all predecessors. It reports
// whether any of them crossed a back edge.
func (w *walk) merge(start uint64, branches []result) (value.Value, bool) {
	var known, unknown value.Value
	var haveValue, haveUnknown, incompatible, loop bool

	for _, b := range branches {
		w.tr.depend(b.trace)
		loop = loop || b.loop
		switch {
		case b.val.IsDeadEnd():
		case b.val.IsKnown():
			haveValue = true
			if known.IsKnown() && known.State() != b.val.State() {
				incompatible = true
			} else {
				known.Union(b.val)
			}
		default:
			haveValue = true
			if !haveUnknown {
				unknown, haveUnknown = b.val, true
			}
		}
	}

	switch {
	case !haveValue:
		return value.NewDeadEnd(start), loop
	case haveUnknown:
		return unknown, loop
	case incompatible, known.Len() > w.q.e.opts.MaxValues:
		return value.NewUnknownMerge(start), loop
	default:
		return known, loop
	}
}

// finish computes the values of all segments from the value v of the last
// segment, caches them unless they hold only under the guard of the walk and
// returns the value at the top of the walk. loop is set if v crossed a back
// edge.
func (w *walk) finish(v value.Value, lo uint64, loop bool) result {
	q := w.q
	last := len(w.segs) - 1
	w.segs[last].lo = lo
	values := make([]value.Value, len(w.segs))
	loops := make([]bool, len(w.segs))
	for i := last; i >= 0; i-- {
		if i < last {
			v = w.applyMove(v, w.segs[i].move)
			loop = loop || w.segs[i].loop
		}
		v = acrossLoop(v, loop)
		values[i], loops[i] = v, loop
	}

	own := w.span(lo)
	res := result{
		val:     values[0],
		guarded: w.guardUsed,
		trace:   trace{loop: loops[0]},
	}
	if w.guardUsed || q.aborted || values[last].IsAborted() {
		res.deps = w.tr.deps
		res.walked = append(w.tr.walked, own)
		return res
	}

	walked := append(w.tr.walked, own)
	var topID chain.ID
	var inserted bool
	for i := last; i >= 0; i-- {
		s := w.segs[i]
		if !s.hasHi || s.lo > s.hi {
			continue
		}
		topID = q.e.chains.Insert(s.op, chain.Span{Start: s.lo, End: s.hi}, values[i], loops[i], w.tr.deps, walked)
		inserted = i == 0
	}

	if inserted {
		res.deps = []chain.ID{topID}
	} else {
		res.deps = w.tr.deps
		res.walked = walked
	}
	return res
}

// acrossLoop reports an unresolved value that crossed a back edge as
// unknown across loop, anchored at its defining instruction.
func acrossLoop(v value.Value, loop bool) value.Value {
	if !loop || v.IsKnown() || v.IsSpecial() {
		return v
	}
	switch v.State() {
	case value.BadInstruction, value.UnknownAcrossLoop:
		return v
	}
	addr, _ := v.DefAddr()
	return value.NewUnknownLoop(addr)
}

// applyMove converts the value of a move source into the value of its destination.
func (w *walk) applyMove(v value.Value, mv Move) value.Value {
	if !v.IsKnown() {
		return v
	}
	// stack deltas are relative, narrow stack pointers keep them untouched
	if width := mv.Src.Width(); width < 8 && v.IsNumber() {
		v = v.Extend(width, mv.Signed, w.q.e.arch.AddressBits())
	}
	if mv.Delta != 0 {
		v = v.AddNum(mv.Delta)
		if v.IsNumber() {
			v = v.Truncate(w.q.e.arch.AddressBits())
		}
	}
	return v
}

// span returns the address range the walk depends on.
func (w *walk) span(lo uint64) chain.Span {
	s := chain.Span{Start: min(lo, w.top), End: w.top}
	if w.examined {
		s.Start = min(s.Start, w.lo)
		s.End = max(s.End, w.hi)
	}
	return s
}

func (w *walk) abortResult() result {
	return result{val: value.NewAborted(w.q.abortAt), trace: w.tr}
}
