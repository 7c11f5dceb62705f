// Package x86 provides the x86-64 architecture hooks for code tracing and
// register tracking.
package x86

import (
	"encoding/binary"
	"strings"

	"github.com/retroenv/regtrack/internal/arch"
	"github.com/retroenv/regtrack/internal/engine"
	"github.com/retroenv/regtrack/internal/operand"
	archsys "github.com/retroenv/retrogolib/arch"
	"golang.org/x/arch/x86/x86asm"
)

// System identifies 64 bit x86 executables.
const System archsys.System = "x86-64"

// Register ids of the general purpose registers, in encoding order.
const (
	RegRAX = iota
	RegRCX
	RegRDX
	RegRBX
	RegRSP
	RegRBP
	RegRSI
	RegRDI
	RegR8
	RegR9
	RegR10
	RegR11
	RegR12
	RegR13
	RegR14
	RegR15

	numRegisters
)

const (
	addressBits = 64
	maxInsnSize = 15
	mode        = 64
)

var _ arch.Architecture = (*X86)(nil)

// X86 implements arch.Architecture for 64 bit x86 code.
type X86 struct {
	engine.DefaultArch
}

// New returns a new x86-64 architecture.
func New() *X86 {
	return &X86{}
}

// Name returns the short name of the architecture.
func (a *X86) Name() string {
	return "x86-64"
}

// ByteOrder returns little endian.
func (a *X86) ByteOrder() binary.ByteOrder {
	return binary.LittleEndian
}

// AddressBits returns 64.
func (a *X86) AddressBits() int {
	return addressBits
}

// StackPointer returns RSP.
func (a *X86) StackPointer() (int, bool) {
	return RegRSP, true
}

// Register returns the register id for 64 bit register names like "rax" or "r12".
func (a *X86) Register(name string) (int, bool) {
	name = strings.ToUpper(name)
	for reg := range numRegisters {
		if (x86asm.RAX + x86asm.Reg(reg)).String() == name {
			return reg, true
		}
	}
	return 0, false
}

// RegisterName returns the 64 bit name of a register id.
func (a *X86) RegisterName(reg int) string {
	if reg < 0 || reg >= numRegisters {
		return ""
	}
	return strings.ToLower((x86asm.RAX + x86asm.Reg(reg)).String())
}

// gprInfo describes an x86asm general purpose register.
type gprInfo struct {
	id    int
	width int
	high  bool // AH, CH, DH or BH
}

// gpr maps the x86asm register to the register id and the accessed width.
func gpr(r x86asm.Reg) (gprInfo, bool) {
	switch {
	case r >= x86asm.AL && r <= x86asm.BL:
		return gprInfo{id: int(r - x86asm.AL), width: 1}, true
	case r >= x86asm.AH && r <= x86asm.BH:
		return gprInfo{id: int(r - x86asm.AH), width: 1, high: true}, true
	case r >= x86asm.SPB && r <= x86asm.R15B:
		return gprInfo{id: int(r-x86asm.SPB) + RegRSP, width: 1}, true
	case r >= x86asm.AX && r <= x86asm.R15W:
		return gprInfo{id: int(r - x86asm.AX), width: 2}, true
	case r >= x86asm.EAX && r <= x86asm.R15L:
		return gprInfo{id: int(r - x86asm.EAX), width: 4}, true
	case r >= x86asm.RAX && r <= x86asm.R15:
		return gprInfo{id: int(r - x86asm.RAX), width: 8}, true
	default:
		return gprInfo{}, false
	}
}

func (g gprInfo) operand() operand.Operand {
	return operand.NewRegister(g.id, g.width, false)
}

func register(reg, width int) operand.Operand {
	return operand.NewRegister(reg, width, false)
}

var jumpConditions = map[x86asm.Op]engine.CondCode{
	x86asm.JE: engine.EQ, x86asm.JNE: engine.NE,
	x86asm.JAE: engine.CS, x86asm.JB: engine.CC,
	x86asm.JS: engine.MI, x86asm.JNS: engine.PL,
	x86asm.JO: engine.VS, x86asm.JNO: engine.VC,
	x86asm.JA: engine.HI, x86asm.JBE: engine.LS,
	x86asm.JGE: engine.GE, x86asm.JL: engine.LT,
	x86asm.JG: engine.GT, x86asm.JLE: engine.LE,
	// no matching condition code, edges of these branches guard nothing
	x86asm.JP: engine.Always, x86asm.JNP: engine.Always,
	x86asm.JCXZ: engine.Always, x86asm.JECXZ: engine.Always, x86asm.JRCXZ: engine.Always,
}

var moveConditions = map[x86asm.Op]engine.CondCode{
	x86asm.CMOVE: engine.EQ, x86asm.CMOVNE: engine.NE,
	x86asm.CMOVAE: engine.CS, x86asm.CMOVB: engine.CC,
	x86asm.CMOVS: engine.MI, x86asm.CMOVNS: engine.PL,
	x86asm.CMOVO: engine.VS, x86asm.CMOVNO: engine.VC,
	x86asm.CMOVA: engine.HI, x86asm.CMOVBE: engine.LS,
	x86asm.CMOVGE: engine.GE, x86asm.CMOVL: engine.LT,
	x86asm.CMOVG: engine.GT, x86asm.CMOVLE: engine.LE,
	x86asm.CMOVP: engine.Never, x86asm.CMOVNP: engine.Never,
}

var flagOps = map[x86asm.Op]struct{}{
	x86asm.ADD: {}, x86asm.SUB: {}, x86asm.ADC: {}, x86asm.SBB: {},
	x86asm.AND: {}, x86asm.OR: {}, x86asm.XOR: {}, x86asm.CMP: {},
	x86asm.TEST: {}, x86asm.INC: {}, x86asm.DEC: {}, x86asm.NEG: {},
	x86asm.SHL: {}, x86asm.SHR: {}, x86asm.SAR: {}, x86asm.ROL: {},
	x86asm.ROR: {}, x86asm.IMUL: {}, x86asm.MUL: {}, x86asm.BT: {},
	x86asm.BSF: {}, x86asm.BSR: {}, x86asm.XADD: {}, x86asm.CMPXCHG: {},
}

// Condition returns the condition of conditional branches and moves.
func (a *X86) Condition(insn engine.Instruction) engine.Cond {
	inst := detail(insn)
	if code, ok := jumpConditions[inst.Op]; ok {
		return engine.Cond{Code: code, Kind: engine.CondJumps}
	}
	if code, ok := moveConditions[inst.Op]; ok {
		return engine.Cond{Code: code}
	}
	if _, ok := flagOps[inst.Op]; ok {
		return engine.Cond{Kind: engine.CondModifiesFlags}
	}
	return engine.Cond{}
}
