// Package disasm implements the recursive descent code tracer that discovers
// the code of a program and builds its cross-reference graph.
package disasm

import (
	"context"
	"fmt"
	"slices"

	"github.com/retroenv/regtrack/internal/arch"
	"github.com/retroenv/regtrack/internal/engine"
	"github.com/retroenv/regtrack/internal/program"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrogolib/set"
)

// Disasm implements the code tracer.
type Disasm struct {
	logger *log.Logger
	prog   *program.Program
	arch   arch.Architecture

	offsetsToParse      []uint64
	offsetsToParseAdded set.Set[uint64]
	offsetsParsed       set.Set[uint64]

	indirectJumps []uint64
}

// New creates a new tracer for the program.
func New(logger *log.Logger, prog *program.Program) *Disasm {
	return &Disasm{
		logger:              logger,
		prog:                prog,
		arch:                prog.Arch(),
		offsetsToParseAdded: set.New[uint64](),
		offsetsParsed:       set.New[uint64](),
	}
}

// Process traces the code reachable from all program entry points.
func (dis *Disasm) Process(ctx context.Context) error {
	for _, entry := range dis.prog.Entries() {
		dis.AddAddressToParse(entry.Address)
	}
	return dis.followExecutionFlow(ctx)
}

// AddJumpTarget adds a resolved target of an indirect jump and traces the
// newly reachable code.
func (dis *Disasm) AddJumpTarget(ctx context.Context, from, target uint64) error {
	dis.prog.SetType(target, program.JumpDestination)
	dis.prog.AddXref(from, target, engine.Jump)
	dis.AddAddressToParse(target)
	return dis.followExecutionFlow(ctx)
}

// AddAddressToParse adds an address to the list to be processed if the
// address has not been processed yet.
func (dis *Disasm) AddAddressToParse(address uint64) {
	if dis.offsetsToParseAdded.Contains(address) {
		return
	}
	dis.offsetsToParseAdded.Add(address)
	dis.offsetsToParse = append(dis.offsetsToParse, address)
}

// IndirectJumps returns the addresses of all traced indirect jumps.
func (dis *Disasm) IndirectJumps() []uint64 {
	jumps := slices.Clone(dis.indirectJumps)
	slices.Sort(jumps)
	return jumps
}

// followExecutionFlow parses opcodes and follows the execution flow to parse all code.
func (dis *Disasm) followExecutionFlow(ctx context.Context) error {
	for len(dis.offsetsToParse) > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("tracing code: %w", err)
		}

		address := dis.offsetsToParse[0]
		dis.offsetsToParse = dis.offsetsToParse[1:]
		if dis.offsetsParsed.Contains(address) {
			continue
		}
		dis.offsetsParsed.Add(address)
		dis.processOffset(address)
	}
	return nil
}

func (dis *Disasm) processOffset(address uint64) {
	insn, err := dis.prog.Decode(address)
	if err != nil {
		dis.logger.Warn("Skipping code that can not be decoded",
			log.Hex("address", address),
			log.Err(err))
		return
	}
	dis.prog.SetType(address, program.CodeOffset)

	flow := dis.arch.Flow(insn)
	if flow.Indirect {
		dis.prog.SetType(address, program.IndirectJump)
		dis.indirectJumps = append(dis.indirectJumps, address)
	}

	for _, target := range flow.Targets {
		if flow.Call {
			dis.prog.SetType(target, program.CallDestination)
		} else {
			dis.prog.SetType(target, program.JumpDestination)
			dis.prog.AddXref(address, target, engine.Jump)
		}
		dis.AddAddressToParse(target)
	}

	if insn.Fallthrough {
		dis.prog.AddXref(address, insn.Next(), engine.Flow)
		dis.AddAddressToParse(insn.Next())
	}
}
