package engine

import (
	"github.com/retroenv/regtrack/internal/chain"
	"github.com/retroenv/regtrack/internal/operand"
	"github.com/retroenv/retrogolib/set"
)

// maxCycleBlocks limits the blocks visited when classifying an edge.
const maxCycleBlocks = 4096

type loopKey struct {
	x  Xref
	op operand.Operand
}

// loopResult is the outcome of scanning a loop for one operand. A pure loop
// brings the operand back to its header unchanged.
type loopResult struct {
	pure   bool
	at     uint64 // instruction that changes the operand
	walked []chain.Span
}

// isBackEdge returns whether the predecessor edge x closes a loop: it does
// not advance in address order and its target can be reached backwards
// from its source. Every cycle of the graph contains such an edge.
func (q *Query) isBackEdge(x Xref) bool {
	if x.From < x.To {
		return false
	}
	if back, ok := q.cycles[x]; ok {
		return back
	}

	back := false
	seen := set.New[uint64]()
	queue := []uint64{x.From}
	for len(queue) > 0 && len(seen) < maxCycleBlocks {
		start := q.blockOf(queue[0])
		queue = queue[1:]
		if start == x.To {
			back = true
			break
		}
		if seen.Contains(start) || q.e.host.IsFunctionStart(start) {
			continue
		}
		seen.Add(start)
		for _, p := range q.e.host.Predecessors(start) {
			queue = append(queue, p.From)
		}
	}

	q.cycles[x] = back
	return back
}

// blockOf returns the first instruction of the basic block containing address.
func (q *Query) blockOf(address uint64) uint64 {
	for {
		prev, ok := q.prevInBlock(address)
		if !ok {
			return address
		}
		address = prev
	}
}

// scanLoop walks backwards from the back edge x to the loop header and
// checks whether op arrives there unchanged. Hooks run without nested
// searches, an instruction that needs one counts as a change.
func (q *Query) scanLoop(x Xref, op operand.Operand) loopResult {
	key := loopKey{x: x, op: op}
	if res, ok := q.loops[key]; ok {
		return res
	}

	scanning := q.scanning
	q.scanning = true
	s := &loopScan{
		q:      q,
		header: x.To,
		op:     op,
		states: map[scanState]scanResult{},
	}
	pure, at := s.edge(x, op, 0, q.e.opts.FuncMaxDepth)
	q.scanning = scanning

	res := loopResult{pure: pure, at: at, walked: s.walked}
	q.loops[key] = res
	return res
}

type scanState struct {
	start uint64
	op    operand.Operand
	delta int64
}

type scanResult struct {
	pure bool
	at   uint64
}

type loopScan struct {
	q      *Query
	header uint64
	op     operand.Operand
	states map[scanState]scanResult
	walked []chain.Span
}

// edge scans the block that ends with the edge x.
func (s *loopScan) edge(x Xref, op operand.Operand, delta int64, depth int) (bool, uint64) {
	q := s.q
	pending := q.edgePending(x)
	span := chain.Span{Start: x.From, End: max(x.From, pending[0])}

	cur := x.From
	for {
		var addr uint64
		if len(pending) > 0 {
			addr, pending = pending[0], pending[1:]
		} else {
			prev, ok := q.prevInBlock(cur)
			if !ok {
				break
			}
			addr = prev
		}
		span.Start = min(span.Start, addr)

		var ok bool
		if op, delta, ok = s.step(addr, op, delta); !ok {
			s.walked = append(s.walked, span)
			return false, addr
		}
		cur = addr
	}

	s.walked = append(s.walked, span)
	return s.block(cur, op, delta, depth)
}

// step interprets one instruction. It returns false if the instruction
// changes op other than by an unconditional move.
func (s *loopScan) step(addr uint64, op operand.Operand, delta int64) (operand.Operand, int64, bool) {
	q := s.q
	insn, err := q.e.host.Decode(addr)
	if err != nil {
		return op, delta, false
	}
	cond := q.e.arch.Condition(insn)

	if mv, ok := q.e.arch.IsMove(q, op, insn); ok {
		if cond.Code != Always || mv.Signed || mv.Src.IsEmpty() {
			return op, delta, false
		}
		return mv.Src, delta + mv.Delta, true
	}
	if _, defines := q.e.arch.Emulate(q, op, insn); defines {
		return op, delta, false
	}
	return op, delta, true
}

// block continues the scan at the first instruction of a basic block.
func (s *loopScan) block(start uint64, op operand.Operand, delta int64, depth int) (bool, uint64) {
	q := s.q
	if start == s.header {
		return op == s.op && delta == 0, start
	}
	preds := q.e.host.Predecessors(start)
	if q.e.host.IsFunctionStart(start) || len(preds) == 0 || depth <= 1 {
		return false, start
	}

	key := scanState{start: start, op: op, delta: delta}
	if res, ok := s.states[key]; ok {
		// an inner loop that returns with the same state changes nothing
		return res.pure, res.at
	}
	s.states[key] = scanResult{pure: true}

	res := scanResult{pure: true}
	for _, x := range preds {
		if pure, at := s.edge(x, op, delta, depth-1); !pure {
			res = scanResult{at: at}
			break
		}
	}
	s.states[key] = res
	return res.pure, res.at
}
