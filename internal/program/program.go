// Package program contains the program image that is analyzed: the mapped
// memory, the decoded instructions and the cross-reference graph that the
// register tracker walks.
package program

import (
	"fmt"
	"slices"

	"github.com/retroenv/regtrack/internal/arch"
	"github.com/retroenv/regtrack/internal/engine"
)

var (
	_ engine.Host         = (*Program)(nil)
	_ engine.MemoryReader = (*Program)(nil)
	_ arch.Memory         = (*Program)(nil)
)

// Entry is a named code entry point like a reset vector or an ELF symbol.
type Entry struct {
	Address uint64
	Name    string
}

// Program defines a loaded program of one architecture.
type Program struct {
	arch arch.Architecture

	segments []Segment // sorted by start address
	readOnly []Range
	entries  []Entry

	types map[uint64]OffsetType
	insns map[uint64]engine.Instruction

	preds     map[uint64][]engine.Xref
	succs     map[uint64][]engine.Xref
	listeners []Listener
}

// New returns an empty program for the given architecture.
func New(ar arch.Architecture) *Program {
	return &Program{
		arch:  ar,
		types: map[uint64]OffsetType{},
		insns: map[uint64]engine.Instruction{},
		preds: map[uint64][]engine.Xref{},
		succs: map[uint64][]engine.Xref{},
	}
}

// Arch returns the architecture of the program.
func (p *Program) Arch() arch.Architecture {
	return p.arch
}

// AddEntry adds a code entry point. Entry points are function starts.
func (p *Program) AddEntry(address uint64, name string) {
	for i, e := range p.entries {
		if e.Address == address {
			if e.Name == "" {
				p.entries[i].Name = name
			}
			return
		}
	}
	p.entries = append(p.entries, Entry{Address: address, Name: name})
	p.SetType(address, EntryPoint)
}

// Entries returns all entry points in the order they were added.
func (p *Program) Entries() []Entry {
	return slices.Clone(p.entries)
}

// EntryName returns the name of the entry point at the given address.
func (p *Program) EntryName(address uint64) string {
	for _, e := range p.entries {
		if e.Address == address {
			return e.Name
		}
	}
	return ""
}

// IsFunctionStart returns whether a function starts at the given address.
func (p *Program) IsFunctionStart(address uint64) bool {
	return p.IsType(address, EntryPoint|CallDestination)
}

// Decode returns the instruction at the given address. Decoded instructions
// are cached.
func (p *Program) Decode(address uint64) (engine.Instruction, error) {
	if insn, ok := p.insns[address]; ok {
		return insn, nil
	}
	insn, err := p.arch.Decode(p, address)
	if err != nil {
		return engine.Instruction{}, fmt.Errorf("decoding instruction at %#x: %w", address, err)
	}
	p.insns[address] = insn
	return insn, nil
}

// Instructions returns all instructions that were marked as code, sorted by address.
func (p *Program) Instructions() []engine.Instruction {
	addrs := p.Addresses(CodeOffset)
	insns := make([]engine.Instruction, 0, len(addrs))
	for _, addr := range addrs {
		if insn, ok := p.insns[addr]; ok {
			insns = append(insns, insn)
		}
	}
	return insns
}
