// Package engine implements the backward data flow search of the register
// tracker.
//
// The engine answers which value a register or stack slot holds immediately
// before an address. It walks the cross-reference graph of the host backwards,
// interprets instructions through architecture hooks and merges the values
// arriving over different predecessors. Results are cached in chains that the
// host invalidates whenever it changes the graph.
package engine

import (
	"fmt"

	"github.com/retroenv/regtrack/internal/chain"
	"github.com/retroenv/regtrack/internal/operand"
	"github.com/retroenv/regtrack/internal/value"
	"github.com/retroenv/retrogolib/log"
)

// StackPointer selects the architecture stack pointer in FindStackDelta.
const StackPointer = -1

// Options control the search limits.
type Options struct {
	MaxDepth     int // default depth in basic blocks
	FuncMaxDepth int // depth for function-wide registers and upper limit
	MaxChains    int // the cache is flushed when it holds more chains
	MaxValues    int // merges producing more values become incompatible merges
}

// DefaultOptions returns the default search limits.
func DefaultOptions() Options {
	return Options{
		MaxDepth:     8,
		FuncMaxDepth: 64,
		MaxChains:    100000,
		MaxValues:    32,
	}
}

// Engine is the register tracker of one program. It is not safe for
// concurrent use.
type Engine struct {
	logger *log.Logger
	host   Host
	arch   Arch
	opts   Options
	chains *chain.Store
}

// New returns a new engine for the program described by host.
func New(logger *log.Logger, host Host, arch Arch, opts Options) *Engine {
	defaults := DefaultOptions()
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaults.MaxDepth
	}
	if opts.FuncMaxDepth <= 0 {
		opts.FuncMaxDepth = defaults.FuncMaxDepth
	}
	opts.FuncMaxDepth = max(opts.FuncMaxDepth, opts.MaxDepth)
	if opts.MaxChains <= 0 {
		opts.MaxChains = defaults.MaxChains
	}
	if opts.MaxValues <= 0 {
		opts.MaxValues = defaults.MaxValues
	}

	return &Engine{
		logger: logger,
		host:   host,
		arch:   arch,
		opts:   opts,
		chains: chain.New(),
	}
}

// Options returns the effective search limits.
func (e *Engine) Options() Options {
	return e.opts
}

// Chains returns the chain store of the engine.
func (e *Engine) Chains() *chain.Store {
	return e.chains
}

// Find returns the value of op immediately before address.
//
// maxDepth is the search depth in basic blocks, 0 selects the default depth
// and -1 the function-wide depth. An empty operand is a programming error.
func (e *Engine) Find(address uint64, op operand.Operand, maxDepth int) value.Value {
	if op.IsEmpty() {
		panic(fmt.Sprintf("find at %#x: empty operand", address))
	}

	if e.chains.Len() > e.opts.MaxChains {
		e.logger.Debug("Flushing register tracker cache", log.Int("chains", e.chains.Len()))
		e.chains.Reset()
	}
	e.chains.Forget()

	q := newQuery(e)
	depth := e.depth(op, maxDepth)
	res := q.find(address, op, depth)
	v := res.val
	if q.aborted {
		v = value.NewAborted(q.abortAt)
	}

	e.logger.Debug("Tracked operand",
		log.Hex("address", address),
		log.Stringer("operand", op),
		log.Int("depth", depth),
		log.Stringer("value", v))
	return v
}

// FindConst returns the number op holds before address if it is unique.
func (e *Engine) FindConst(address uint64, op operand.Operand) (uint64, bool) {
	return e.Find(address, op, 0).Num()
}

// FindStackDelta returns the stack pointer delta that reg holds before
// address. Pass StackPointer to use the architecture stack pointer.
func (e *Engine) FindStackDelta(address uint64, reg int, maxDepth int) (int64, bool) {
	if reg == StackPointer {
		sp, ok := e.arch.StackPointer()
		if !ok {
			return 0, false
		}
		reg = sp
	}
	op := operand.NewRegister(reg, e.arch.RegisterWidth(reg), false)
	if op.IsEmpty() {
		return 0, false
	}
	return e.Find(address, op, maxDepth).Delta()
}

// FindNearest searches both registers with a short depth first and then with
// the default depth. It returns the first known value and the register it
// belongs to, or the value of the first register if neither is known.
func (e *Engine) FindNearest(address uint64, regs [2]int) (value.Value, int) {
	var first value.Value
	for _, depth := range []int{1, 0} {
		for i, reg := range regs {
			op := operand.NewRegister(reg, e.arch.RegisterWidth(reg), false)
			if op.IsEmpty() {
				continue
			}
			v := e.Find(address, op, depth)
			if v.IsKnown() {
				return v, reg
			}
			if i == 0 && depth == 0 {
				first = v
			}
		}
	}
	return first, regs[0]
}

// Invalidate drops all cached results that depend on the control flow at
// the given addresses. The host calls it for every added or removed edge.
func (e *Engine) Invalidate(to, from uint64) {
	dropped := e.chains.Invalidate(to, from)
	if dropped > 0 {
		e.logger.Debug("Invalidated register tracker chains",
			log.Hex("to", to),
			log.Hex("from", from),
			log.Int("chains", dropped))
	}
}

// InvalidateAll drops all cached results.
func (e *Engine) InvalidateAll() {
	e.chains.Reset()
}

// depth normalizes the requested search depth.
func (e *Engine) depth(op operand.Operand, maxDepth int) int {
	switch {
	case maxDepth == -1:
		return e.opts.FuncMaxDepth
	case maxDepth <= 0:
		if op.IsRegister() && e.isFunctionWide(op.Reg()) {
			return e.opts.FuncMaxDepth
		}
		return e.opts.MaxDepth
	default:
		return min(maxDepth, e.opts.FuncMaxDepth)
	}
}

func (e *Engine) isStackPointer(op operand.Operand) bool {
	sp, ok := e.arch.StackPointer()
	return ok && op.IsReg(sp)
}

func (e *Engine) isFunctionWide(reg int) bool {
	sp, ok := e.arch.StackPointer()
	return (ok && reg == sp) || e.arch.IsFunctionWide(reg)
}
