// Package arch contains types and functions used for multi architecture support.
// It acts as a bridge between the program host, the register tracker and the
// architecture specific code.
package arch

import (
	"encoding/binary"
	"errors"

	"github.com/retroenv/regtrack/internal/engine"
	"github.com/retroenv/regtrack/internal/operand"
	"github.com/retroenv/regtrack/internal/value"
)

// ErrInvalidInstruction is returned when the bytes at an address do not form a valid instruction.
var ErrInvalidInstruction = errors.New("invalid instruction")

// Architecture contains architecture specific information.
type Architecture interface {
	engine.Arch

	// Name returns the short name of the architecture.
	Name() string
	// ByteOrder returns the byte order of multi byte memory values.
	ByteOrder() binary.ByteOrder
	// Decode decodes the instruction at the given address.
	Decode(mem Memory, address uint64) (engine.Instruction, error)
	// Flow returns the control flow effect of a decoded instruction.
	Flow(insn engine.Instruction) Flow
	// ResolveIndirect returns the targets of an indirect jump together with
	// the value that the targets were computed from.
	ResolveIndirect(t Tracker, mem Memory, insn engine.Instruction) ([]uint64, value.Value)
	// Register returns the register id for a register name.
	Register(name string) (int, bool)
	// RegisterName returns the name of a register id.
	RegisterName(reg int) string
}

// Flow describes how an instruction transfers control.
type Flow struct {
	Targets  []uint64 // direct branch, jump or call targets
	Call     bool     // the targets are called functions
	Indirect bool     // the target depends on register or memory values
	Return   bool     // the instruction returns to the caller
}

// Memory gives access to the program image.
type Memory interface {
	// ReadBytes returns up to n bytes starting at address. Fewer bytes are
	// returned at the end of a mapped region.
	ReadBytes(address uint64, n int) ([]byte, error)
	// ReadMemory reads a value of width bytes in the program byte order.
	ReadMemory(address uint64, width int) (uint64, error)
	// IsReadOnly returns whether all bytes of the range are read-only.
	IsReadOnly(address uint64, width int) bool
}

// Tracker answers register queries, it is implemented by *engine.Engine.
type Tracker interface {
	Find(address uint64, op operand.Operand, maxDepth int) value.Value
}

// Targets converts the numbers of a value into code addresses of addrBits
// width. It returns nil if the value is not a set of numbers.
func Targets(v value.Value, addrBits int) []uint64 {
	if !v.IsNumber() {
		return nil
	}
	vals := v.Values()
	targets := make([]uint64, 0, len(vals))
	for _, val := range vals {
		targets = append(targets, value.TruncateBits(val, addrBits))
	}
	return targets
}
