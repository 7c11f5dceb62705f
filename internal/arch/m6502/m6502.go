// Package m6502 provides the 6502 architecture hooks for code tracing and
// register tracking.
package m6502

import (
	"encoding/binary"
	"strings"

	"github.com/retroenv/regtrack/internal/arch"
	"github.com/retroenv/regtrack/internal/engine"
	"github.com/retroenv/regtrack/internal/operand"
	m6502 "github.com/retroenv/retrogolib/arch/cpu/cpu6502"
	"github.com/retroenv/retrogolib/arch/system/nes"
)

// Register ids. The carry flag is tracked like a register as ADC and SBC
// depend on it.
const (
	RegA = iota
	RegX
	RegY
	RegSP
	RegC
)

const addressBits = 16

var registerNames = [...]string{
	RegA:  "a",
	RegX:  "x",
	RegY:  "y",
	RegSP: "sp",
	RegC:  "c",
}

var _ arch.Architecture = &Arch6502{}

// Options configures the decoder.
type Options struct {
	// NoUnofficialInstructions treats unofficial opcodes as invalid instructions.
	NoUnofficialInstructions bool
}

// Arch6502 implements arch.Architecture for the 6502 CPU.
type Arch6502 struct {
	engine.DefaultArch

	opts Options
}

// New returns a new 6502 architecture configuration.
func New(opts Options) *Arch6502 {
	return &Arch6502{
		opts: opts,
	}
}

// Name returns the short name of the architecture.
func (ar *Arch6502) Name() string {
	return "6502"
}

// ByteOrder returns little endian.
func (ar *Arch6502) ByteOrder() binary.ByteOrder {
	return binary.LittleEndian
}

// AddressBits returns 16.
func (ar *Arch6502) AddressBits() int {
	return addressBits
}

// RegisterWidth returns 1, all registers are 8 bit.
func (ar *Arch6502) RegisterWidth(int) int {
	return 1
}

// StackPointer returns the S register.
func (ar *Arch6502) StackPointer() (int, bool) {
	return RegSP, true
}

// IsMemReadOnly returns whether the address is inside the cartridge ROM.
func (ar *Arch6502) IsMemReadOnly(address uint64) bool {
	return address >= uint64(nes.CodeBaseAddress) && address <= 0xFFFF
}

// Register returns the register id for names like "a", "X" or "sp".
func (ar *Arch6502) Register(name string) (int, bool) {
	name = strings.ToLower(name)
	if name == "s" {
		return RegSP, true
	}
	for reg, n := range registerNames {
		if n == name {
			return reg, true
		}
	}
	return 0, false
}

// RegisterName returns the name of a register id.
func (ar *Arch6502) RegisterName(reg int) string {
	if reg < 0 || reg >= len(registerNames) {
		return ""
	}
	return strings.ToUpper(registerNames[reg])
}

// branchConditions maps the conditional branches to the condition under
// which the branch is taken.
var branchConditions = map[string]engine.CondCode{
	m6502.BeqInst.Name: engine.EQ,
	m6502.BneInst.Name: engine.NE,
	m6502.BcsInst.Name: engine.CS,
	m6502.BccInst.Name: engine.CC,
	m6502.BmiInst.Name: engine.MI,
	m6502.BplInst.Name: engine.PL,
	m6502.BvsInst.Name: engine.VS,
	m6502.BvcInst.Name: engine.VC,
}

// flagInstructions modify the processor status flags.
var flagInstructions = map[string]struct{}{
	m6502.AdcInst.Name: {}, m6502.AndInst.Name: {}, m6502.AslInst.Name: {}, m6502.BitInst.Name: {},
	m6502.ClcInst.Name: {}, m6502.CldInst.Name: {}, m6502.CliInst.Name: {}, m6502.ClvInst.Name: {},
	m6502.CmpInst.Name: {}, m6502.CpxInst.Name: {}, m6502.CpyInst.Name: {}, m6502.DecInst.Name: {},
	m6502.DexInst.Name: {}, m6502.DeyInst.Name: {}, m6502.EorInst.Name: {}, m6502.IncInst.Name: {},
	m6502.InxInst.Name: {}, m6502.InyInst.Name: {}, m6502.LdaInst.Name: {}, m6502.LdxInst.Name: {},
	m6502.LdyInst.Name: {}, m6502.LsrInst.Name: {}, m6502.OraInst.Name: {}, m6502.PlaInst.Name: {},
	m6502.PlpInst.Name: {}, m6502.RolInst.Name: {}, m6502.RorInst.Name: {}, m6502.SbcInst.Name: {},
	m6502.SecInst.Name: {}, m6502.SedInst.Name: {}, m6502.SeiInst.Name: {}, m6502.TaxInst.Name: {},
	m6502.TayInst.Name: {}, m6502.TsxInst.Name: {}, m6502.TxaInst.Name: {}, m6502.TyaInst.Name: {},
}

// Condition returns the branch condition of conditional branches and marks
// instructions that change the flags.
func (ar *Arch6502) Condition(insn engine.Instruction) engine.Cond {
	ins := detail(insn)
	if code, ok := branchConditions[ins.Name()]; ok {
		return engine.Cond{Code: code, Kind: engine.CondJumps}
	}
	if _, ok := flagInstructions[ins.Name()]; ok || ins.Unofficial() {
		return engine.Cond{Kind: engine.CondModifiesFlags}
	}
	return engine.Cond{}
}

func register(reg int) operand.Operand {
	return operand.NewRegister(reg, 1, false)
}
