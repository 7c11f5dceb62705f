package engine

import (
	"fmt"

	"github.com/retroenv/regtrack/internal/chain"
	"github.com/retroenv/regtrack/internal/operand"
	"github.com/retroenv/regtrack/internal/value"
)

// trace collects what a result depends on.
type trace struct {
	loop   bool // a back edge changed the value
	deps   []chain.ID
	walked []chain.Span
}

func (t *trace) absorb(o trace) {
	t.depend(o)
	t.loop = t.loop || o.loop
}

// depend takes over the dependencies of o but not its loop flag.
func (t *trace) depend(o trace) {
	t.deps = append(t.deps, o.deps...)
	t.walked = append(t.walked, o.walked...)
}

type result struct {
	val     value.Value
	guarded bool // the value holds only under the guard the walk started with
	trace
}

// Query is the state of one top-level search. Architecture hooks receive it
// to issue nested searches that share the depth budget of the instruction
// being interpreted.
type Query struct {
	e       *Engine
	depth   int    // remaining depth of the walk that called the hook
	nested  *trace // trace of the walk that called the hook
	aborted bool
	abortAt uint64

	scanning bool                   // hooks run for a loop scan, nested searches are not answered
	cycles   map[Xref]bool          // back edge classification
	loops    map[loopKey]loopResult // loop scans of back edges per operand
}

func newQuery(e *Engine) *Query {
	return &Query{
		e:      e,
		cycles: map[Xref]bool{},
		loops:  map[loopKey]loopResult{},
	}
}

// AddressBits returns the address width of the architecture.
func (q *Query) AddressBits() int {
	return q.e.arch.AddressBits()
}

// Find returns the value of op before address.
func (q *Query) Find(address uint64, op operand.Operand) value.Value {
	if op.IsEmpty() {
		panic(fmt.Sprintf("nested find at %#x: empty operand", address))
	}
	if q.scanning {
		return value.NewUnknownAfter(value.Site{Addr: address})
	}
	caller := q.nested
	res := q.find(address, op, max(q.depth, 1))
	if caller != nil {
		caller.absorb(res.trace)
	}
	return res.val
}

// FindReg returns the value of a register with its natural width before address.
func (q *Query) FindReg(address uint64, reg int) value.Value {
	op := operand.NewRegister(reg, q.e.arch.RegisterWidth(reg), false)
	if op.IsEmpty() {
		return value.NewUnknownAfter(value.Site{Addr: address})
	}
	return q.Find(address, op)
}

// StackDelta returns the stack pointer delta before address.
func (q *Query) StackDelta(address uint64) (int64, bool) {
	sp, ok := q.e.arch.StackPointer()
	if !ok {
		return 0, false
	}
	return q.FindReg(address, sp).Delta()
}

// ReadMemory emulates a read of width bytes from the addresses in addr.
// The read succeeds only if every address is a known number pointing to
// read-only memory.
func (q *Query) ReadMemory(addr value.Value, width int, signed bool, site value.Site) value.Value {
	mem, ok := q.e.host.(MemoryReader)
	if !ok || !addr.IsNumber() {
		return value.NewUnknownAfter(site)
	}

	var res value.Value
	for _, a := range addr.Values() {
		if !mem.IsReadOnly(a, width) && !q.e.arch.IsMemReadOnly(a) {
			return value.NewUnknownAfter(site)
		}
		data, err := mem.ReadMemory(a, width)
		if err != nil {
			return value.NewUnknownAfter(site)
		}
		res.Union(value.NewNumber(value.ExtendSign(data, width, signed), site))
	}
	if res.Len() > q.e.opts.MaxValues {
		return value.NewUnknownAfter(site)
	}
	return res.Truncate(q.e.arch.AddressBits())
}

func (q *Query) abort(address uint64) {
	if !q.aborted {
		q.aborted = true
		q.abortAt = address
	}
}

func (q *Query) find(address uint64, op operand.Operand, depth int) result {
	if owner, ok := q.e.arch.DelaySlotOwner(address); ok {
		address = owner
	}
	w := q.newWalk(op, depth, Always)
	top := &w.segs[0]
	top.hi, top.hasHi = address, true
	w.top = address
	return w.run(address, nil)
}

// walkPred continues the search in the block ending with the predecessor
// edge x. guard is the condition known to hold at the end of the edge.
func (q *Query) walkPred(x Xref, op operand.Operand, depth int, guard CondCode) result {
	inherited := true
	insn, err := q.e.host.Decode(x.From)
	if err == nil {
		cond := q.e.arch.Condition(insn)
		if cond.Kind == CondJumps && cond.Code != Always {
			inherited = false
			slot, hasSlot := q.e.arch.DelaySlot(x.From)
			switch {
			case x.Kind == Jump:
				guard = cond.Code
			case hasSlot && slot == x.To:
				guard = Always
			default:
				guard = cond.Code.Invert()
			}
		}
	}

	w := q.newWalk(op, depth, guard)
	w.top = x.From
	res := w.run(x.From, q.edgePending(x))
	// the edge condition holds for every path over x, only an inherited
	// guard makes the caller depend on it
	res.guarded = res.guarded && inherited
	return res
}

// edgePending returns the instructions executed last before x arrives, the
// delay slot of a taken branch runs after the branch.
func (q *Query) edgePending(x Xref) []uint64 {
	if x.Kind == Jump {
		if slot, ok := q.e.arch.DelaySlot(x.From); ok {
			return []uint64{slot, x.From}
		}
	}
	return []uint64{x.From}
}

// prevInBlock returns the instruction executed before address if both belong
// to the same basic block.
func (q *Query) prevInBlock(address uint64) (uint64, bool) {
	if q.e.host.IsFunctionStart(address) {
		return 0, false
	}
	preds := q.e.host.Predecessors(address)
	if len(preds) != 1 || preds[0].Kind != Flow || preds[0].From >= address {
		return 0, false
	}
	from := preds[0].From
	if len(q.e.host.Successors(from)) != 1 {
		return 0, false
	}
	return from, true
}
