package x86

import (
	"fmt"
	"strings"

	"github.com/retroenv/regtrack/internal/arch"
	"github.com/retroenv/regtrack/internal/engine"
	"golang.org/x/arch/x86/x86asm"
)

// stopOps do not continue with the following instruction.
var stopOps = map[x86asm.Op]struct{}{
	x86asm.JMP:  {},
	x86asm.LJMP: {},
	x86asm.RET:  {},
	x86asm.LRET: {},
	x86asm.HLT:  {},
	x86asm.UD2:  {},
}

// Decode decodes the instruction at the given address.
func (a *X86) Decode(mem arch.Memory, address uint64) (engine.Instruction, error) {
	data, err := mem.ReadBytes(address, maxInsnSize)
	if err != nil {
		return engine.Instruction{}, fmt.Errorf("reading memory at address %#x: %w", address, err)
	}
	inst, err := x86asm.Decode(data, mode)
	if err != nil {
		return engine.Instruction{}, fmt.Errorf("%w: %w at %#x", arch.ErrInvalidInstruction, err, address)
	}

	_, stops := stopOps[inst.Op]
	return engine.Instruction{
		Address:     address,
		Size:        inst.Len,
		Kind:        uint16(inst.Op),
		Name:        strings.ToLower(inst.Op.String()),
		Fallthrough: !stops,
		Detail:      inst,
	}, nil
}

func detail(insn engine.Instruction) x86asm.Inst {
	inst, _ := insn.Detail.(x86asm.Inst)
	return inst
}

// Flow returns the control flow effect of the instruction.
func (a *X86) Flow(insn engine.Instruction) arch.Flow {
	inst := detail(insn)
	switch inst.Op {
	case x86asm.RET, x86asm.LRET:
		return arch.Flow{Return: true}
	case x86asm.CALL:
		if rel, ok := inst.Args[0].(x86asm.Rel); ok {
			return arch.Flow{Targets: []uint64{relTarget(insn, rel)}, Call: true}
		}
		return arch.Flow{Call: true}
	case x86asm.JMP:
		if rel, ok := inst.Args[0].(x86asm.Rel); ok {
			return arch.Flow{Targets: []uint64{relTarget(insn, rel)}}
		}
		return arch.Flow{Indirect: true}
	}
	if _, ok := jumpConditions[inst.Op]; ok {
		if rel, ok := inst.Args[0].(x86asm.Rel); ok {
			return arch.Flow{Targets: []uint64{relTarget(insn, rel)}}
		}
	}
	return arch.Flow{}
}

func relTarget(insn engine.Instruction, rel x86asm.Rel) uint64 {
	return insn.Next() + uint64(int64(rel))
}
