package program

import (
	"slices"

	"github.com/retroenv/regtrack/internal/engine"
)

// Listener is notified about every added or removed cross-reference. The
// register tracker uses it to invalidate cached results.
type Listener func(to, from uint64)

// OnChange registers a listener for graph changes.
func (p *Program) OnChange(l Listener) {
	p.listeners = append(p.listeners, l)
}

// AddXref adds a control flow edge. It returns false if the edge exists already.
func (p *Program) AddXref(from, to uint64, kind engine.XrefKind) bool {
	x := engine.Xref{From: from, To: to, Kind: kind}
	if slices.Contains(p.succs[from], x) {
		return false
	}
	p.succs[from] = append(p.succs[from], x)
	p.preds[to] = append(p.preds[to], x)
	p.notify(to, from)
	return true
}

// RemoveXref removes all edges between two addresses. It returns whether an
// edge was removed.
func (p *Program) RemoveXref(from, to uint64) bool {
	isEdge := func(x engine.Xref) bool { return x.From == from && x.To == to }
	n := len(p.succs[from])
	p.succs[from] = slices.DeleteFunc(p.succs[from], isEdge)
	p.preds[to] = slices.DeleteFunc(p.preds[to], isEdge)
	if len(p.succs[from]) == n {
		return false
	}
	p.notify(to, from)
	return true
}

func (p *Program) notify(to, from uint64) {
	for _, l := range p.listeners {
		l(to, from)
	}
}

// Predecessors returns all edges ending at the given address.
func (p *Program) Predecessors(address uint64) []engine.Xref {
	return p.preds[address]
}

// Successors returns all edges starting at the given address.
func (p *Program) Successors(address uint64) []engine.Xref {
	return p.succs[address]
}
