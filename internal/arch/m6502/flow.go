package m6502

import (
	"github.com/retroenv/regtrack/internal/arch"
	"github.com/retroenv/regtrack/internal/engine"
	"github.com/retroenv/regtrack/internal/operand"
	"github.com/retroenv/regtrack/internal/value"
	m6502 "github.com/retroenv/retrogolib/arch/cpu/cpu6502"
)

// Flow returns the control flow effect of the instruction.
func (ar *Arch6502) Flow(insn engine.Instruction) arch.Flow {
	ins := detail(insn)
	switch ins.Name() {
	case m6502.JsrInst.Name:
		return arch.Flow{Targets: []uint64{uint64(ins.Param)}, Call: true}
	case m6502.JmpInst.Name:
		if ins.Addressing == m6502.IndirectAddressing {
			return arch.Flow{Indirect: true}
		}
		return arch.Flow{Targets: []uint64{uint64(ins.Param)}}
	case m6502.RtsInst.Name:
		// pushing an address and returning to it is a common jump table idiom
		return arch.Flow{Indirect: true, Return: true}
	}
	if ins.Addressing == m6502.RelativeAddressing {
		return arch.Flow{Targets: []uint64{uint64(ins.Param)}}
	}
	return arch.Flow{}
}

// ResolveIndirect resolves JMP (addr) through pointers in ROM and RTS
// through return addresses that were pushed inside the function.
func (ar *Arch6502) ResolveIndirect(t arch.Tracker, mem arch.Memory, insn engine.Instruction) ([]uint64, value.Value) {
	ins := detail(insn)
	switch ins.Name() {
	case m6502.JmpInst.Name:
		return ar.resolveIndirectJump(mem, ins, insn)
	case m6502.RtsInst.Name:
		return ar.resolveReturn(t, insn)
	default:
		return nil, value.NewUnknownAfter(insn.Site())
	}
}

func (ar *Arch6502) resolveIndirectJump(mem arch.Memory, ins Instruction, insn engine.Instruction) ([]uint64, value.Value) {
	site := insn.Site()
	// the high byte of the pointer is read without carry into the page
	lo := uint64(ins.Param)
	hi := lo&0xFF00 | (lo+1)&0x00FF
	if !mem.IsReadOnly(lo, 1) || !mem.IsReadOnly(hi, 1) {
		return nil, value.NewUnknownAfter(site)
	}

	b1, err := mem.ReadMemory(lo, 1)
	if err != nil {
		return nil, value.NewUnknownAfter(site)
	}
	b2, err := mem.ReadMemory(hi, 1)
	if err != nil {
		return nil, value.NewUnknownAfter(site)
	}
	target := value.NewNumber(b2<<8|b1, site)
	return arch.Targets(target, addressBits), target
}

func (ar *Arch6502) resolveReturn(t arch.Tracker, insn engine.Instruction) ([]uint64, value.Value) {
	site := insn.Site()
	sp := t.Find(insn.Address, register(RegSP), 0)
	delta, ok := sp.Delta()
	if !ok {
		return nil, sp
	}

	lo := t.Find(insn.Address, operand.NewStackSlot(delta+1, 1), 0)
	if !lo.IsNumber() {
		return nil, lo
	}
	hi := t.Find(insn.Address, operand.NewStackSlot(delta+2, 1), 0)
	if !hi.IsNumber() {
		return nil, hi
	}

	target := hi.Shl(value.NewNumber(8, site), site).
		Or(lo, site).
		Add(value.NewNumber(1, site), site).
		Truncate(addressBits)
	return arch.Targets(target, addressBits), target
}
