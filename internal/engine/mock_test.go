package engine

import (
	"errors"
	"slices"

	"github.com/retroenv/regtrack/internal/operand"
	"github.com/retroenv/regtrack/internal/value"
)

const (
	regZero = 0
	regSP   = 15
)

var errNoInstruction = errors.New("no instruction")

// testInsn is an instruction of a small register machine used by the tests.
type testInsn struct {
	name   string // set, addi, add, mov, movcc, subsp, push, pop, cmp, jmp, bcc, jds, ret, call, nop, bad
	dst    int
	src    int
	imm    int64
	cond   CondCode
	target uint64
}

// mockHost is a program of test instructions, one address per instruction.
type mockHost struct {
	insns     map[uint64]testInsn
	preds     map[uint64][]Xref
	succs     map[uint64][]Xref
	funcs     map[uint64]bool
	memory    map[uint64]byte
	readOnly  map[uint64]bool
	decodes   int
	delaySlot bool
}

func newMockHost(program map[uint64]testInsn, funcs ...uint64) *mockHost {
	h := &mockHost{
		insns:    program,
		preds:    map[uint64][]Xref{},
		succs:    map[uint64][]Xref{},
		funcs:    map[uint64]bool{},
		memory:   map[uint64]byte{},
		readOnly: map[uint64]bool{},
	}
	for _, f := range funcs {
		h.funcs[f] = true
	}

	addrs := make([]uint64, 0, len(program))
	for addr := range program {
		addrs = append(addrs, addr)
	}
	slices.Sort(addrs)
	for _, addr := range addrs {
		insn := program[addr]
		switch insn.name {
		case "jmp":
			h.addXref(addr, insn.target, Jump)
		case "bcc", "jds":
			h.addXref(addr, addr+1, Flow)
			h.addXref(addr, insn.target, Jump)
		case "ret":
		default:
			h.addXref(addr, addr+1, Flow)
		}
	}
	return h
}

func (h *mockHost) addXref(from, to uint64, kind XrefKind) {
	x := Xref{From: from, To: to, Kind: kind}
	h.preds[to] = append(h.preds[to], x)
	h.succs[from] = append(h.succs[from], x)
}

func (h *mockHost) Decode(address uint64) (Instruction, error) {
	h.decodes++
	insn, ok := h.insns[address]
	if !ok || insn.name == "bad" {
		return Instruction{}, errNoInstruction
	}
	return Instruction{
		Address:     address,
		Size:        1,
		Name:        insn.name,
		Fallthrough: insn.name != "jmp" && insn.name != "ret",
		Detail:      insn,
	}, nil
}

func (h *mockHost) Predecessors(address uint64) []Xref { return h.preds[address] }
func (h *mockHost) Successors(address uint64) []Xref   { return h.succs[address] }
func (h *mockHost) IsFunctionStart(address uint64) bool {
	return h.funcs[address]
}

func (h *mockHost) ReadMemory(address uint64, width int) (uint64, error) {
	var v uint64
	for i := range width {
		b, ok := h.memory[address+uint64(i)]
		if !ok {
			return 0, errNoInstruction
		}
		v |= uint64(b) << (8 * i)
	}
	return v, nil
}

func (h *mockHost) IsReadOnly(address uint64, width int) bool {
	for i := range width {
		if !h.readOnly[address+uint64(i)] {
			return false
		}
	}
	return true
}

// mockArch interprets test instructions. Registers are 8 bytes wide,
// register 0 is hardwired to zero and register 15 is the stack pointer.
type mockArch struct {
	DefaultArch
	delaySlots bool
}

func reg(r int) operand.Operand {
	return operand.NewRegister(r, 8, false)
}

func (a *mockArch) StackPointer() (int, bool) { return regSP, true }

func (a *mockArch) DelaySlot(branch uint64) (uint64, bool) {
	return branch + 1, a.delaySlots
}

func (a *mockArch) Condition(insn Instruction) Cond {
	ti := insn.Detail.(testInsn)
	switch ti.name {
	case "cmp":
		return Cond{Code: Always, Kind: CondModifiesFlags}
	case "bcc":
		return Cond{Code: ti.cond, Kind: CondJumps}
	case "movcc":
		return Cond{Code: ti.cond}
	default:
		return Cond{}
	}
}

func (a *mockArch) WellKnown(_ *Query, _ uint64, op operand.Operand, _ bool) (value.Value, bool) {
	if op.IsReg(regZero) {
		return value.NumberAt(0, 0, 0), true
	}
	return value.Value{}, false
}

func (a *mockArch) IsMove(_ *Query, op operand.Operand, insn Instruction) (Move, bool) {
	ti := insn.Detail.(testInsn)
	switch {
	case (ti.name == "mov" || ti.name == "movcc") && op.IsReg(ti.dst):
		return Move{Src: reg(ti.src)}, true
	case ti.name == "subsp" && op.IsReg(regSP):
		return Move{Src: reg(regSP), Delta: -ti.imm}, true
	case ti.name == "push" && op.IsReg(regSP):
		return Move{Src: reg(regSP), Delta: -8}, true
	case ti.name == "pop" && op.IsReg(regSP):
		return Move{Src: reg(regSP), Delta: 8}, true
	default:
		return Move{}, false
	}
}

func (a *mockArch) Emulate(q *Query, op operand.Operand, insn Instruction) (value.Value, bool) {
	ti := insn.Detail.(testInsn)
	site := insn.Site()

	if op.IsStackSlot() {
		return a.emulateStack(q, op, insn)
	}
	if ti.name == "call" && !op.IsReg(regSP) {
		return value.NewUnknownAfter(site), true
	}
	if !op.IsReg(ti.dst) {
		return value.Value{}, false
	}

	switch ti.name {
	case "set":
		return value.NewNumber(uint64(ti.imm), site), true
	case "addi":
		return q.Find(insn.Address, reg(ti.src)).Add(value.NewNumber(uint64(ti.imm), site), site), true
	case "add":
		left := q.Find(insn.Address, reg(ti.dst))
		right := q.Find(insn.Address, reg(ti.src))
		return left.Add(right, site), true
	case "load":
		addr := q.Find(insn.Address, reg(ti.src))
		return q.ReadMemory(addr, 2, false, site), true
	case "pop":
		delta, ok := q.StackDelta(insn.Address)
		if !ok {
			return value.NewUnknownAfter(site), true
		}
		return q.Find(insn.Address, operand.NewStackSlot(delta, 8)), true
	}
	return value.Value{}, false
}

func (a *mockArch) emulateStack(q *Query, op operand.Operand, insn Instruction) (value.Value, bool) {
	ti := insn.Detail.(testInsn)
	if ti.name != "push" {
		return value.Value{}, false
	}
	delta, ok := q.StackDelta(insn.Address)
	if !ok {
		return value.NewUnknownAfter(insn.Site()), true
	}
	if slot := operand.NewStackSlot(delta-8, 8); slot == op {
		return q.Find(insn.Address, reg(ti.src)), true
	}
	return value.Value{}, false
}
