package m6502

import (
	"github.com/retroenv/regtrack/internal/engine"
	"github.com/retroenv/regtrack/internal/operand"
	"github.com/retroenv/regtrack/internal/value"
	m6502 "github.com/retroenv/retrogolib/arch/cpu/cpu6502"
)

// registerMoves are the transfer instructions, mapped to destination and
// source register.
var registerMoves = map[string][2]int{
	m6502.TaxInst.Name: {RegX, RegA},
	m6502.TayInst.Name: {RegY, RegA},
	m6502.TxaInst.Name: {RegA, RegX},
	m6502.TyaInst.Name: {RegA, RegY},
	m6502.TsxInst.Name: {RegX, RegSP},
	m6502.TxsInst.Name: {RegSP, RegX},
}

// stackMoves are the instructions that push or pull a single byte.
var stackMoves = map[string]int64{
	m6502.PhaInst.Name: -1,
	m6502.PhpInst.Name: -1,
	m6502.PlaInst.Name: 1,
	m6502.PlpInst.Name: 1,
}

// carryInstructions set the carry flag to a result dependent value.
var carryInstructions = map[string]struct{}{
	m6502.AdcInst.Name: {}, m6502.SbcInst.Name: {}, m6502.CmpInst.Name: {}, m6502.CpxInst.Name: {},
	m6502.CpyInst.Name: {}, m6502.AslInst.Name: {}, m6502.LsrInst.Name: {}, m6502.RolInst.Name: {},
	m6502.RorInst.Name: {}, m6502.PlpInst.Name: {}, m6502.RtiInst.Name: {},
}

// IsMove returns the register transfers and the stack pointer changes of
// the push and pull instructions.
func (ar *Arch6502) IsMove(_ *engine.Query, op operand.Operand, insn engine.Instruction) (engine.Move, bool) {
	if !op.IsRegister() {
		return engine.Move{}, false
	}
	name := detail(insn).Name()
	if regs, ok := registerMoves[name]; ok && op.IsReg(regs[0]) {
		return engine.Move{Src: register(regs[1])}, true
	}
	if delta, ok := stackMoves[name]; ok && op.IsReg(RegSP) {
		return engine.Move{Src: register(RegSP), Delta: delta}, true
	}
	return engine.Move{}, false
}

// Emulate returns the value of the operand after the instruction.
func (ar *Arch6502) Emulate(q *engine.Query, op operand.Operand, insn engine.Instruction) (value.Value, bool) {
	ins := detail(insn)
	site := insn.Site()

	if op.IsStackSlot() {
		return ar.emulateStack(q, op, ins, insn)
	}
	if !op.IsRegister() {
		return value.Value{}, false
	}
	reg := op.Reg()

	if ins.Name() == m6502.JsrInst.Name {
		// the stack pointer is balanced by the return of the subroutine
		if reg == RegSP {
			return value.Value{}, false
		}
		return value.NewUnknownAfter(site), true
	}
	if reg == RegC {
		return ar.emulateCarry(ins, site)
	}
	if ins.Unofficial() && ins.Name() != m6502.NopInst.Name && (reg == RegA || reg == RegX) {
		return value.NewUnknownAfter(site), true
	}

	switch reg {
	case RegA:
		return ar.emulateAccumulator(q, ins, insn)
	case RegX:
		return ar.emulateIndex(q, ins, insn, RegX, m6502.LdxInst.Name, m6502.InxInst.Name, m6502.DexInst.Name)
	case RegY:
		return ar.emulateIndex(q, ins, insn, RegY, m6502.LdyInst.Name, m6502.InyInst.Name, m6502.DeyInst.Name)
	case RegSP:
		if ins.Name() == m6502.RtiInst.Name || ins.Name() == m6502.RtsInst.Name || ins.Name() == m6502.BrkInst.Name {
			return value.NewUnknownAfter(site), true
		}
	}
	return value.Value{}, false
}

func (ar *Arch6502) emulateAccumulator(q *engine.Query, ins Instruction, insn engine.Instruction) (value.Value, bool) {
	site := insn.Site()
	name := ins.Name()
	var res value.Value

	switch name {
	case m6502.LdaInst.Name:
		return ar.operandValue(q, ins, insn), true

	case m6502.PlaInst.Name:
		delta, ok := q.StackDelta(insn.Address)
		if !ok {
			return value.NewUnknownAfter(site), true
		}
		return q.Find(insn.Address, operand.NewStackSlot(delta+1, 1)), true

	case m6502.AndInst.Name, m6502.OraInst.Name, m6502.EorInst.Name:
		a := q.FindReg(insn.Address, RegA)
		m := ar.operandValue(q, ins, insn)
		switch name {
		case m6502.AndInst.Name:
			res = a.And(m, site)
		case m6502.OraInst.Name:
			res = a.Or(m, site)
		default:
			res = a.Xor(m, site)
		}

	case m6502.AdcInst.Name, m6502.SbcInst.Name:
		a := q.FindReg(insn.Address, RegA)
		m := ar.operandValue(q, ins, insn)
		c := q.FindReg(insn.Address, RegC)
		if name == m6502.AdcInst.Name {
			res = a.Add(m, site).Add(c, site)
		} else {
			// A - M - (1 - C)
			res = a.Sub(m, site).Add(c, site).Sub(value.NewNumber(1, site), site)
		}

	case m6502.AslInst.Name, m6502.LsrInst.Name, m6502.RolInst.Name, m6502.RorInst.Name:
		if ins.Addressing != m6502.AccumulatorAddressing {
			return value.Value{}, false
		}
		res = ar.shiftAccumulator(q, name, insn)

	default:
		return value.Value{}, false
	}
	return res.Truncate(8), true
}

func (ar *Arch6502) shiftAccumulator(q *engine.Query, name string, insn engine.Instruction) value.Value {
	site := insn.Site()
	a := q.FindReg(insn.Address, RegA)
	switch name {
	case m6502.AslInst.Name:
		return a.AddNumAt(0, site).ShiftLeft(1)
	case m6502.LsrInst.Name:
		return a.AddNumAt(0, site).ShiftRight(1)
	case m6502.RolInst.Name:
		c := q.FindReg(insn.Address, RegC)
		return a.Shl(value.NewNumber(1, site), site).Or(c, site)
	default:
		c := q.FindReg(insn.Address, RegC)
		return a.Shr(value.NewNumber(1, site), site).Or(c.Shl(value.NewNumber(7, site), site), site)
	}
}

func (ar *Arch6502) emulateIndex(q *engine.Query, ins Instruction, insn engine.Instruction,
	reg int, load, inc, dec string) (value.Value, bool) {

	site := insn.Site()
	switch ins.Name() {
	case load:
		return ar.operandValue(q, ins, insn), true
	case inc:
		return q.FindReg(insn.Address, reg).Add(value.NewNumber(1, site), site).Truncate(8), true
	case dec:
		return q.FindReg(insn.Address, reg).Sub(value.NewNumber(1, site), site).Truncate(8), true
	}
	return value.Value{}, false
}

func (ar *Arch6502) emulateCarry(ins Instruction, site value.Site) (value.Value, bool) {
	switch ins.Name() {
	case m6502.ClcInst.Name:
		return value.NewNumber(0, site), true
	case m6502.SecInst.Name:
		return value.NewNumber(1, site), true
	}
	if _, ok := carryInstructions[ins.Name()]; ok || ins.Unofficial() {
		return value.NewUnknownAfter(site), true
	}
	return value.Value{}, false
}

// emulateStack handles writes to the stack page. Slots are relative to the
// stack pointer at the function entry, a push writes to the slot at the
// current stack pointer.
func (ar *Arch6502) emulateStack(q *engine.Query, op operand.Operand, ins Instruction, insn engine.Instruction) (value.Value, bool) {
	site := insn.Site()
	name := ins.Name()
	if name != m6502.PhaInst.Name && name != m6502.PhpInst.Name && name != m6502.JsrInst.Name {
		return value.Value{}, false
	}

	delta, ok := q.StackDelta(insn.Address)
	if !ok {
		return value.NewUnknownAfter(site), true
	}

	switch name {
	case m6502.PhaInst.Name:
		if op == operand.NewStackSlot(delta, 1) {
			return q.FindReg(insn.Address, RegA), true
		}
	case m6502.PhpInst.Name:
		if op == operand.NewStackSlot(delta, 1) {
			return value.NewUnknownAfter(site), true
		}
	default:
		// the return address minus one is pushed high byte first, the
		// subroutine can overwrite everything below it
		ret := insn.Address + 2
		switch {
		case op == operand.NewStackSlot(delta, 1):
			return value.NewNumber(ret>>8&0xFF, site), true
		case op == operand.NewStackSlot(delta-1, 1):
			return value.NewNumber(ret&0xFF, site), true
		case op.Offset() < delta-1:
			return value.NewUnknownAfter(site), true
		}
	}
	return value.Value{}, false
}

// operandValue returns the value that an instruction reads with its
// addressing mode.
func (ar *Arch6502) operandValue(q *engine.Query, ins Instruction, insn engine.Instruction) value.Value {
	site := insn.Site()
	if ins.Addressing == m6502.ImmediateAddressing {
		return value.NewNumber(uint64(ins.Param), site)
	}
	addr := ar.effectiveAddress(q, ins, insn)
	return q.ReadMemory(addr, 1, false, site)
}

// effectiveAddress returns the memory address of the operand. The pointers
// of the indirect modes are in zero page RAM and are never known.
func (ar *Arch6502) effectiveAddress(q *engine.Query, ins Instruction, insn engine.Instruction) value.Value {
	site := insn.Site()
	base := value.NewNumber(uint64(ins.Param), site)

	switch ins.Addressing {
	case m6502.ZeroPageAddressing, m6502.AbsoluteAddressing:
		return base
	case m6502.ZeroPageXAddressing:
		return base.Add(q.FindReg(insn.Address, RegX), site).Truncate(8)
	case m6502.ZeroPageYAddressing:
		return base.Add(q.FindReg(insn.Address, RegY), site).Truncate(8)
	case m6502.AbsoluteXAddressing:
		return base.Add(q.FindReg(insn.Address, RegX), site).Truncate(addressBits)
	case m6502.AbsoluteYAddressing:
		return base.Add(q.FindReg(insn.Address, RegY), site).Truncate(addressBits)
	default:
		return value.NewUnknownAfter(site)
	}
}
