// Package chain implements the memoization store of the register tracker.
//
// A chain is an address range over which a tracked operand holds one value.
// Chains of the same operand never overlap. Every chain remembers the chains
// and address ranges its value was computed from, so that a change of the
// control flow graph can drop all results that might be affected by it.
package chain

import (
	"fmt"
	"slices"

	"github.com/retroenv/regtrack/internal/operand"
	"github.com/retroenv/regtrack/internal/value"
	"github.com/retroenv/retrogolib/set"
	"github.com/sirkon/rbtree"
)

// ID identifies a chain inside a store.
type ID uint64

// Span is an inclusive address range.
type Span struct {
	Start uint64
	End   uint64
}

// Contains returns whether addr is inside the span.
func (s Span) Contains(addr uint64) bool {
	return addr >= s.Start && addr <= s.End
}

// Chain is a memoized value of an operand over an address range.
type Chain struct {
	ID    ID
	Op    operand.Operand
	Span  Span
	Value value.Value
	Loop  bool // the value crossed a back edge

	Deps   []ID   // chains the value was computed from
	Walked []Span // walked address ranges that are not covered by a dependency
}

// node is the interval tree entry. Overlapping nodes compare equal, which makes
// a search with a point node return the chain containing that address.
type node struct {
	start uint64
	end   uint64
	chain *Chain
}

func (n *node) Cmp(other *node) int {
	if n.end < other.start {
		return -1
	}
	if n.start > other.end {
		return 1
	}
	return 0
}

// Store holds all chains of one program.
type Store struct {
	chains     map[ID]*Chain
	trees      map[operand.Operand]*rbtree.Tree[*node]
	byOperand  map[operand.Operand]set.Set[ID]
	dependents map[ID]set.Set[ID]
	replaced   map[ID]*Chain // chains evicted by overlapping inserts
	nextID     ID
}

// New returns an empty store.
func New() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset drops all chains.
func (s *Store) Reset() {
	s.chains = map[ID]*Chain{}
	s.trees = map[operand.Operand]*rbtree.Tree[*node]{}
	s.byOperand = map[operand.Operand]set.Set[ID]{}
	s.dependents = map[ID]set.Set[ID]{}
	s.replaced = map[ID]*Chain{}
}

// Forget drops the bookkeeping of evicted chains. Dependencies on them can
// only arise while a single search is running.
func (s *Store) Forget() {
	clear(s.replaced)
}

// Len returns the number of chains.
func (s *Store) Len() int {
	return len(s.chains)
}

// Lookup returns the chain of op that contains addr.
func (s *Store) Lookup(op operand.Operand, addr uint64) (*Chain, bool) {
	tree, ok := s.trees[op]
	if !ok {
		return nil, false
	}
	found := tree.Search(&node{start: addr, end: addr})
	if found == nil {
		return nil, false
	}
	return found.chain, true
}

// Insert adds a chain for op and returns its id.
//
// If the range overlaps existing chains of op that hold the same value and
// cover the whole range, the existing chain is returned. Other overlapping
// chains are dropped together with their dependents, which keeps the store
// free of overlaps. Dependencies that were evicted this way are replaced by
// their ranges and their own dependencies.
func (s *Store) Insert(op operand.Operand, span Span, v value.Value, loop bool, deps []ID, walked []Span) ID {
	if op.IsEmpty() || span.End < span.Start {
		panic(fmt.Sprintf("invalid chain %s [%#x, %#x]", op, span.Start, span.End))
	}

	tree, ok := s.trees[op]
	if !ok {
		tree = rbtree.New[*node]()
		s.trees[op] = tree
	}

	s.nextID++
	c := &Chain{
		ID:     s.nextID,
		Op:     op,
		Span:   span,
		Value:  v,
		Loop:   loop,
		Walked: slices.Clone(walked),
	}

	n := &node{start: span.Start, end: span.End, chain: c}
	for {
		existing := tree.InsertReturn(n)
		if existing == n {
			break
		}
		if existing.chain.Value.Equal(v) && existing.start <= span.Start && existing.end >= span.End {
			return existing.chain.ID
		}
		s.evict(existing.chain.ID)
		if tree, ok = s.trees[op]; !ok {
			tree = rbtree.New[*node]()
			s.trees[op] = tree
		}
	}

	s.link(c, deps)

	s.chains[c.ID] = c
	ids, ok := s.byOperand[op]
	if !ok {
		ids = set.New[ID]()
		s.byOperand[op] = ids
	}
	ids.Add(c.ID)
	for _, dep := range c.Deps {
		dependents, ok := s.dependents[dep]
		if !ok {
			dependents = set.New[ID]()
			s.dependents[dep] = dependents
		}
		dependents.Add(c.ID)
	}
	return c.ID
}

// Invalidate drops every chain whose range or walked ranges contain one of
// the addresses, and every chain that depends on a dropped chain.
// It returns the number of dropped chains.
func (s *Store) Invalidate(addrs ...uint64) int {
	var hit []ID
	for id, c := range s.chains {
		if c.touches(addrs) {
			hit = append(hit, id)
		}
	}
	return s.drop(hit)
}

// link records the dependencies of c. An evicted dependency is replaced by
// its range, its walked ranges and, recursively, its own dependencies.
func (s *Store) link(c *Chain, deps []ID) {
	seen := set.New[ID]()
	queue := slices.Clone(deps)
	for len(queue) > 0 {
		dep := queue[0]
		queue = queue[1:]
		if seen.Contains(dep) {
			continue
		}
		seen.Add(dep)

		if _, ok := s.chains[dep]; ok {
			c.Deps = append(c.Deps, dep)
			continue
		}
		old, ok := s.replaced[dep]
		if !ok {
			continue
		}
		c.Walked = append(c.Walked, old.Span)
		c.Walked = append(c.Walked, old.Walked...)
		queue = append(queue, old.Deps...)
	}
}

func (c *Chain) touches(addrs []uint64) bool {
	for _, addr := range addrs {
		if c.Span.Contains(addr) {
			return true
		}
		for _, w := range c.Walked {
			if w.Contains(addr) {
				return true
			}
		}
	}
	return false
}

// evict drops the chain with its dependents and remembers them for linking
// the chain that replaces it.
func (s *Store) evict(id ID) {
	for _, c := range s.collect([]ID{id}) {
		s.replaced[c.ID] = c
	}
}

// drop removes the chains and their transitive dependents.
func (s *Store) drop(ids []ID) int {
	return len(s.collect(ids))
}

// collect removes the chains and their transitive dependents and returns
// the removed chains.
func (s *Store) collect(ids []ID) []*Chain {
	removed := set.New[ID]()
	touched := set.New[operand.Operand]()
	var chains []*Chain

	queue := slices.Clone(ids)
	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if removed.Contains(id) {
			continue
		}
		c, ok := s.chains[id]
		if !ok {
			continue
		}
		removed.Add(id)
		chains = append(chains, c)
		touched.Add(c.Op)
		delete(s.chains, id)
		for dep := range s.dependents[id] {
			queue = append(queue, dep)
		}
		delete(s.dependents, id)
	}

	for op := range touched {
		s.rebuild(op)
	}
	return chains
}

// rebuild recreates the interval tree of op from the remaining chains.
func (s *Store) rebuild(op operand.Operand) {
	remaining := set.New[ID]()
	tree := rbtree.New[*node]()
	for id := range s.byOperand[op] {
		c, ok := s.chains[id]
		if !ok {
			continue
		}
		remaining.Add(id)
		n := &node{start: c.Span.Start, end: c.Span.End, chain: c}
		if tree.InsertReturn(n) != n {
			panic(fmt.Sprintf("overlapping chains for %s at [%#x, %#x]", op, c.Span.Start, c.Span.End))
		}
	}

	if len(remaining) == 0 {
		delete(s.byOperand, op)
		delete(s.trees, op)
		return
	}
	s.byOperand[op] = remaining
	s.trees[op] = tree
}

// Chains returns a snapshot of all chains of op ordered by address.
func (s *Store) Chains(op operand.Operand) []Chain {
	var chains []Chain
	for id := range s.byOperand[op] {
		if c, ok := s.chains[id]; ok {
			chains = append(chains, *c)
		}
	}
	slices.SortFunc(chains, func(a, b Chain) int {
		switch {
		case a.Span.Start < b.Span.Start:
			return -1
		case a.Span.Start > b.Span.Start:
			return 1
		default:
			return 0
		}
	})
	return chains
}

// Operands returns all operands that have chains, in operand order.
func (s *Store) Operands() []operand.Operand {
	ops := make([]operand.Operand, 0, len(s.byOperand))
	for op := range s.byOperand {
		ops = append(ops, op)
	}
	slices.SortFunc(ops, operand.Operand.Compare)
	return ops
}
