package x86

import (
	"math/bits"
	"slices"

	"github.com/retroenv/regtrack/internal/engine"
	"github.com/retroenv/regtrack/internal/operand"
	"github.com/retroenv/regtrack/internal/value"
	"golang.org/x/arch/x86/x86asm"
)

// callerSaved are the registers that a called function can change in the
// System V calling convention.
var callerSaved = []int{RegRAX, RegRCX, RegRDX, RegRSI, RegRDI, RegR8, RegR9, RegR10, RegR11}

// implicitWrites are registers that instructions write without naming them
// as destination.
var implicitWrites = map[x86asm.Op][]int{
	x86asm.MUL:     {RegRAX, RegRDX},
	x86asm.DIV:     {RegRAX, RegRDX},
	x86asm.IDIV:    {RegRAX, RegRDX},
	x86asm.CWD:     {RegRDX},
	x86asm.CDQ:     {RegRDX},
	x86asm.CQO:     {RegRDX},
	x86asm.CWDE:    {RegRAX},
	x86asm.CDQE:    {RegRAX},
	x86asm.CPUID:   {RegRAX, RegRBX, RegRCX, RegRDX},
	x86asm.RDTSC:   {RegRAX, RegRDX},
	x86asm.SYSCALL: {RegRAX, RegRCX, RegR11},
	x86asm.CMPXCHG: {RegRAX},
	x86asm.STOSB:   {RegRDI, RegRCX},
	x86asm.STOSW:   {RegRDI, RegRCX},
	x86asm.STOSD:   {RegRDI, RegRCX},
	x86asm.STOSQ:   {RegRDI, RegRCX},
	x86asm.MOVSB:   {RegRDI, RegRSI, RegRCX},
	x86asm.MOVSW:   {RegRDI, RegRSI, RegRCX},
	x86asm.MOVSQ:   {RegRDI, RegRSI, RegRCX},
	x86asm.LODSB:   {RegRAX, RegRSI, RegRCX},
	x86asm.LODSW:   {RegRAX, RegRSI, RegRCX},
	x86asm.LODSD:   {RegRAX, RegRSI, RegRCX},
	x86asm.LODSQ:   {RegRAX, RegRSI, RegRCX},
	x86asm.SCASB:   {RegRDI, RegRCX},
	x86asm.SCASQ:   {RegRDI, RegRCX},
	x86asm.CMPSB:   {RegRDI, RegRSI, RegRCX},
	x86asm.CMPSQ:   {RegRDI, RegRSI, RegRCX},
}

// readOnlyOps read their first argument without writing it.
var readOnlyOps = map[x86asm.Op]struct{}{
	x86asm.CMP: {}, x86asm.TEST: {}, x86asm.PUSH: {}, x86asm.BT: {},
	x86asm.CALL: {}, x86asm.JMP: {}, x86asm.NOP: {}, x86asm.MUL: {},
	x86asm.DIV: {}, x86asm.IDIV: {},
}

// IsMove returns register copies, stack pointer adjustments and address
// computations with a constant offset.
func (a *X86) IsMove(_ *engine.Query, op operand.Operand, insn engine.Instruction) (engine.Move, bool) {
	if !op.IsRegister() {
		return engine.Move{}, false
	}
	inst := detail(insn)
	reg := op.Reg()

	if reg == RegRSP {
		switch inst.Op {
		case x86asm.PUSH:
			return engine.Move{Src: register(RegRSP, 8), Delta: -8}, true
		case x86asm.POP:
			return engine.Move{Src: register(RegRSP, 8), Delta: 8}, true
		case x86asm.LEAVE:
			return engine.Move{Src: register(RegRBP, 8), Delta: 8}, true
		}
	}

	if inst.Op == x86asm.XCHG {
		return exchangeMove(op, inst)
	}

	dst, ok := destination(inst)
	if !ok || dst.id != reg || dst.high {
		return engine.Move{}, false
	}
	if dst.width < 4 && op.Width() > dst.width {
		return engine.Move{}, false
	}

	switch inst.Op {
	case x86asm.MOV, x86asm.CMOVE, x86asm.CMOVNE, x86asm.CMOVAE, x86asm.CMOVB, x86asm.CMOVS,
		x86asm.CMOVNS, x86asm.CMOVO, x86asm.CMOVNO, x86asm.CMOVA, x86asm.CMOVBE, x86asm.CMOVGE,
		x86asm.CMOVL, x86asm.CMOVG, x86asm.CMOVLE, x86asm.CMOVP, x86asm.CMOVNP:
		src, ok := srcRegister(inst.Args[1])
		if !ok {
			return engine.Move{}, false
		}
		return engine.Move{Src: register(src.id, min(op.Width(), dst.width))}, true

	case x86asm.MOVZX, x86asm.MOVSX, x86asm.MOVSXD:
		src, ok := srcRegister(inst.Args[1])
		if !ok || op.Width() < src.width {
			return engine.Move{}, false
		}
		signed := inst.Op != x86asm.MOVZX
		// a sign extended 32 bit result is zero extended to 64 bit
		if signed && dst.width == 4 && op.Width() == 8 {
			return engine.Move{}, false
		}
		return engine.Move{Src: register(src.id, src.width), Signed: signed}, true

	case x86asm.ADD, x86asm.SUB:
		imm, ok := inst.Args[1].(x86asm.Imm)
		if !ok || reg != RegRSP || dst.width != 8 {
			return engine.Move{}, false
		}
		delta := int64(imm)
		if inst.Op == x86asm.SUB {
			delta = -delta
		}
		return engine.Move{Src: register(RegRSP, 8), Delta: delta}, true

	case x86asm.LEA:
		mem, ok := inst.Args[1].(x86asm.Mem)
		if !ok || mem.Index != 0 || mem.Segment != 0 || dst.width != 8 {
			return engine.Move{}, false
		}
		base, ok := gpr(mem.Base)
		if !ok || base.width != 8 {
			return engine.Move{}, false
		}
		return engine.Move{Src: register(base.id, 8), Delta: mem.Disp}, true
	}
	return engine.Move{}, false
}

// exchangeMove returns the move of XCHG for either register argument.
func exchangeMove(op operand.Operand, inst x86asm.Inst) (engine.Move, bool) {
	first, ok1 := srcRegister(inst.Args[0])
	second, ok2 := srcRegister(inst.Args[1])
	if !ok1 || !ok2 {
		return engine.Move{}, false
	}

	var dst, src gprInfo
	switch op.Reg() {
	case first.id:
		dst, src = first, second
	case second.id:
		dst, src = second, first
	default:
		return engine.Move{}, false
	}
	if dst.width < 4 && op.Width() > dst.width {
		return engine.Move{}, false
	}
	return engine.Move{Src: register(src.id, min(op.Width(), dst.width))}, true
}

// Emulate returns the value of the operand after the instruction.
func (a *X86) Emulate(q *engine.Query, op operand.Operand, insn engine.Instruction) (value.Value, bool) {
	inst := detail(insn)
	site := insn.Site()

	if op.IsStackSlot() {
		return a.emulateStack(q, op, inst, insn)
	}
	if !op.IsRegister() {
		return value.Value{}, false
	}
	reg := op.Reg()

	if inst.Op == x86asm.CALL {
		if slices.Contains(callerSaved, reg) {
			return value.NewUnknownAfter(site), true
		}
		return value.Value{}, false
	}
	if regs, ok := implicitWrites[inst.Op]; ok && slices.Contains(regs, reg) {
		return value.NewUnknownAfter(site), true
	}
	if inst.Op == x86asm.IMUL && inst.Args[1] == nil {
		if reg == RegRAX || reg == RegRDX {
			return value.NewUnknownAfter(site), true
		}
		return value.Value{}, false
	}
	if inst.Op == x86asm.LEAVE && reg == RegRBP {
		// RBP is restored from the slot it points to
		return a.loadStack(q, q.Find(insn.Address, register(RegRBP, 8)), 8, site, insn.Address), true
	}
	if inst.Op == x86asm.XADD || inst.Op == x86asm.XCHG {
		if src, ok := srcRegister(inst.Args[1]); ok && src.id == reg {
			return value.NewUnknownAfter(site), true
		}
	}

	dst, ok := destination(inst)
	if !ok || dst.id != reg {
		return value.Value{}, false
	}
	if dst.high {
		if op.Width() > 1 {
			return value.NewUnknownAfter(site), true
		}
		return value.Value{}, false
	}
	if dst.width < 4 && op.Width() > dst.width {
		// the upper bytes keep their previous value
		return value.NewUnknownAfter(site), true
	}

	v := a.compute(q, inst, insn, dst)
	if !v.IsNumber() {
		return v, true
	}
	return v.Truncate(8 * min(dst.width, op.Width())), true
}

// compute returns the value written to the destination register.
func (a *X86) compute(q *engine.Query, inst x86asm.Inst, insn engine.Instruction, dst gprInfo) value.Value {
	site := insn.Site()
	src := inst.Args[1]
	find := func(op operand.Operand) value.Value { return q.Find(insn.Address, op) }

	if _, ok := moveConditions[inst.Op]; ok {
		return a.argValue(q, inst, insn, src, dst.width)
	}
	switch inst.Op {
	case x86asm.MOV:
		return a.argValue(q, inst, insn, src, dst.width)

	case x86asm.MOVZX, x86asm.MOVSX, x86asm.MOVSXD:
		width := argWidth(inst, src)
		v := a.argValue(q, inst, insn, src, width)
		if !v.IsNumber() {
			return v
		}
		return v.Extend(width, inst.Op != x86asm.MOVZX, addressBits)

	case x86asm.LEA:
		mem, ok := src.(x86asm.Mem)
		if !ok {
			return value.NewUnknownAfter(site)
		}
		return effectiveAddress(find, mem, insn)

	case x86asm.XOR, x86asm.SUB:
		if r, ok := srcRegister(src); ok && r.id == dst.id {
			// zeroing idiom
			return value.NewNumber(0, site)
		}
	case x86asm.POP:
		delta, ok := q.StackDelta(insn.Address)
		if !ok {
			return value.NewUnknownAfter(site)
		}
		return q.Find(insn.Address, operand.NewStackSlot(delta, dst.width))
	}

	left := find(dst.operand())
	switch inst.Op {
	case x86asm.INC:
		return left.Add(value.NewNumber(1, site), site)
	case x86asm.DEC:
		return left.Sub(value.NewNumber(1, site), site)
	case x86asm.NEG:
		return left.Neg(site)
	case x86asm.NOT:
		return left.Not(site)
	}

	right := a.argValue(q, inst, insn, src, dst.width)
	switch inst.Op {
	case x86asm.ADD:
		return left.Add(right, site)
	case x86asm.SUB:
		return left.Sub(right, site)
	case x86asm.AND:
		if n, ok := right.Num(); ok && left.IsStackDelta() {
			// and with ^(2^n-1) is the stack alignment idiom
			mask := value.TruncateBits(^n, 8*dst.width)
			return left.AndNot(value.NewNumber(mask, site), site)
		}
		return left.And(right, site)
	case x86asm.OR:
		return left.Or(right, site)
	case x86asm.XOR:
		return left.Xor(right, site)
	case x86asm.SHL:
		return left.Shl(right, site)
	case x86asm.SHR:
		return left.Shr(right, site)
	default:
		return value.NewUnknownAfter(site)
	}
}

// argValue returns the value of an instruction argument read with the given width.
func (a *X86) argValue(q *engine.Query, inst x86asm.Inst, insn engine.Instruction, arg x86asm.Arg, width int) value.Value {
	site := insn.Site()
	switch arg := arg.(type) {
	case x86asm.Imm:
		return value.NewNumber(value.TruncateBits(uint64(int64(arg)), 8*width), site)
	case x86asm.Reg:
		r, ok := gpr(arg)
		if !ok || r.high {
			return value.NewUnknownAfter(site)
		}
		return q.Find(insn.Address, r.operand())
	case x86asm.Mem:
		find := func(op operand.Operand) value.Value { return q.Find(insn.Address, op) }
		addr := effectiveAddress(find, arg, insn)
		return a.loadStack(q, addr, inst.MemBytes, site, insn.Address)
	default:
		return value.NewUnknownAfter(site)
	}
}

// loadStack reads width bytes from the address, which is either a stack
// slot or a global memory address.
func (a *X86) loadStack(q *engine.Query, addr value.Value, width int, site value.Site, address uint64) value.Value {
	if addr.IsStackDelta() && addr.IsUnique() {
		delta, _ := addr.Delta()
		return q.Find(address, operand.NewStackSlot(delta, width))
	}
	return q.ReadMemory(addr, width, false, site)
}

// emulateStack handles writes to stack slots. Stores through a register that
// is not known to point to the stack or to global memory spoil all slots.
func (a *X86) emulateStack(q *engine.Query, op operand.Operand, inst x86asm.Inst, insn engine.Instruction) (value.Value, bool) {
	site := insn.Site()

	switch inst.Op {
	case x86asm.PUSH:
		delta, ok := q.StackDelta(insn.Address)
		if !ok {
			return value.NewUnknownAfter(site), true
		}
		slot := operand.NewStackSlot(delta-8, 8)
		switch {
		case slot == op:
			return a.argValue(q, inst, insn, inst.Args[0], 8), true
		case slot.Overlaps(op):
			return value.NewUnknownAfter(site), true
		}
		return value.Value{}, false

	case x86asm.CALL:
		// the return address and the frame of the called function
		delta, ok := q.StackDelta(insn.Address)
		if !ok || op.Offset() < delta {
			return value.NewUnknownAfter(site), true
		}
		return value.Value{}, false
	}

	mem, ok := inst.Args[0].(x86asm.Mem)
	if !ok {
		return value.Value{}, false
	}
	if _, ok := readOnlyOps[inst.Op]; ok {
		return value.Value{}, false
	}

	find := func(o operand.Operand) value.Value { return q.Find(insn.Address, o) }
	addr := effectiveAddress(find, mem, insn)
	switch {
	case addr.IsNumber():
		return value.Value{}, false
	case !addr.IsStackDelta() || !addr.IsUnique():
		return value.NewUnknownAfter(site), true
	}

	delta, _ := addr.Delta()
	slot := operand.NewStackSlot(delta, inst.MemBytes)
	switch {
	case slot == op && inst.Op == x86asm.MOV:
		return a.argValue(q, inst, insn, inst.Args[1], inst.MemBytes), true
	case slot.Overlaps(op):
		return value.NewUnknownAfter(site), true
	}
	return value.Value{}, false
}

// destination returns the register written by the instruction.
func destination(inst x86asm.Inst) (gprInfo, bool) {
	if _, ok := readOnlyOps[inst.Op]; ok {
		return gprInfo{}, false
	}
	if _, ok := jumpConditions[inst.Op]; ok {
		return gprInfo{}, false
	}
	r, ok := inst.Args[0].(x86asm.Reg)
	if !ok {
		return gprInfo{}, false
	}
	return gpr(r)
}

func srcRegister(arg x86asm.Arg) (gprInfo, bool) {
	r, ok := arg.(x86asm.Reg)
	if !ok {
		return gprInfo{}, false
	}
	info, ok := gpr(r)
	if !ok || info.high {
		return gprInfo{}, false
	}
	return info, true
}

func argWidth(inst x86asm.Inst, arg x86asm.Arg) int {
	if r, ok := srcRegister(arg); ok {
		return r.width
	}
	return inst.MemBytes
}

// effectiveAddress computes the address of a memory argument.
func effectiveAddress(find func(operand.Operand) value.Value, mem x86asm.Mem, insn engine.Instruction) value.Value {
	site := insn.Site()
	if mem.Segment != 0 {
		return value.NewUnknownAfter(site)
	}
	if mem.Base == x86asm.RIP {
		site.Flags |= value.PCBased
		return value.NewNumber(insn.Next()+uint64(mem.Disp), site)
	}

	addr := value.NewNumber(uint64(mem.Disp), site)
	if mem.Base != 0 {
		base, ok := gpr(mem.Base)
		if !ok || base.width < 4 {
			return value.NewUnknownAfter(site)
		}
		addr = find(base.operand()).Add(addr, site)
	}
	if mem.Index != 0 {
		index, ok := gpr(mem.Index)
		if !ok || index.width < 4 || mem.Scale == 0 {
			return value.NewUnknownAfter(site)
		}
		shift := uint64(bits.TrailingZeros8(mem.Scale))
		scaled := find(index.operand()).Shl(value.NewNumber(shift, site), site)
		addr = addr.Add(scaled, site)
	}
	if addr.IsNumber() {
		return addr.Truncate(addressBits)
	}
	return addr
}
