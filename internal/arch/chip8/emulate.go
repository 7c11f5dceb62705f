package chip8

import (
	"github.com/retroenv/regtrack/internal/engine"
	"github.com/retroenv/regtrack/internal/operand"
	"github.com/retroenv/regtrack/internal/value"
)

// IsMove returns LD Vx, Vy as a move from Vy into Vx.
func (c *Chip8) IsMove(_ *engine.Query, op operand.Operand, insn engine.Instruction) (engine.Move, bool) {
	ins := detail(insn)
	if ins.group() == 0x8 && ins.n() == 0 && op.IsReg(ins.x()) {
		return engine.Move{Src: c.register(ins.y())}, true
	}
	return engine.Move{}, false
}

// Emulate returns the value of the register after the instruction.
func (c *Chip8) Emulate(q *engine.Query, op operand.Operand, insn engine.Instruction) (value.Value, bool) {
	if !op.IsRegister() {
		return value.Value{}, false
	}
	ins := detail(insn)
	reg := op.Reg()
	site := insn.Site()

	switch ins.group() {
	case 0x2:
		// the called subroutine can change any register
		return value.NewUnknownAfter(site), true

	case 0x6:
		if reg == ins.x() {
			return value.NewNumber(ins.kk(), site), true
		}

	case 0x7:
		if reg == ins.x() {
			vx := q.FindReg(insn.Address, reg)
			return vx.Add(value.NewNumber(ins.kk(), site), site).Truncate(8), true
		}

	case 0x8:
		return c.emulateALU(q, reg, ins, insn)

	case 0xA:
		if reg == RegI {
			return value.NewNumber(ins.nnn(), site), true
		}

	case 0xC:
		if reg == ins.x() {
			return value.NewUnknownAfter(site), true
		}

	case 0xD:
		if reg == RegVF {
			return value.NewUnknownAfter(site), true
		}

	case 0xF:
		return c.emulateMisc(q, reg, ins, insn)
	}
	return value.Value{}, false
}

// emulateALU handles the 8xyn register operations. Except for the logical
// operations, all of them set VF to a carry, borrow or shifted out bit.
func (c *Chip8) emulateALU(q *engine.Query, reg int, ins Instruction, insn engine.Instruction) (value.Value, bool) {
	site := insn.Site()
	n := ins.n()
	setsFlag := n == 0x4 || n == 0x5 || n == 0x6 || n == 0x7 || n == 0xE
	if setsFlag && reg == RegVF {
		return value.NewUnknownAfter(site), true
	}
	if reg != ins.x() {
		return value.Value{}, false
	}

	vx := q.FindReg(insn.Address, ins.x())
	vy := q.FindReg(insn.Address, ins.y())
	var res value.Value
	switch n {
	case 0x1:
		res = vx.Or(vy, site)
	case 0x2:
		res = vx.And(vy, site)
	case 0x3:
		res = vx.Xor(vy, site)
	case 0x4:
		res = vx.Add(vy, site)
	case 0x5:
		res = vx.Sub(vy, site)
	case 0x6:
		res = vx.AddNumAt(0, site).ShiftRight(1)
	case 0x7:
		res = vy.Sub(vx, site)
	case 0xE:
		res = vx.AddNumAt(0, site).ShiftLeft(1)
	default:
		return value.NewUnknownAfter(site), true
	}
	return res.Truncate(8), true
}

// emulateMisc handles the Fxkk timer, memory and index register operations.
func (c *Chip8) emulateMisc(q *engine.Query, reg int, ins Instruction, insn engine.Instruction) (value.Value, bool) {
	site := insn.Site()
	switch ins.kk() {
	case 0x07, 0x0A: // LD Vx, DT and LD Vx, K
		if reg == ins.x() {
			return value.NewUnknownAfter(site), true
		}

	case 0x1E: // ADD I, Vx
		if reg == RegI {
			i := q.FindReg(insn.Address, RegI)
			vx := q.FindReg(insn.Address, ins.x())
			return i.Add(vx, site).Truncate(addressBits), true
		}

	case 0x29: // LD F, Vx
		if reg == RegI {
			// font sprites are 5 bytes
			vx := q.FindReg(insn.Address, ins.x())
			return vx.MulNumAt(5, site).Truncate(addressBits), true
		}

	case 0x55: // LD [I], Vx
		// interpreters disagree on whether I is incremented
		if reg == RegI {
			return value.NewUnknownAfter(site), true
		}

	case 0x65: // LD Vx, [I]
		if reg == RegI {
			return value.NewUnknownAfter(site), true
		}
		if reg <= ins.x() {
			i := q.FindReg(insn.Address, RegI)
			addr := i.Add(value.NewNumber(uint64(reg), site), site)
			return q.ReadMemory(addr, 1, false, site), true
		}
	}
	return value.Value{}, false
}
