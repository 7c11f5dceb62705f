package m6502

import (
	"fmt"

	"github.com/retroenv/regtrack/internal/arch"
	m6502 "github.com/retroenv/retrogolib/arch/cpu/cpu6502"
)

// Vector is an interrupt handler read from the vector table.
type Vector struct {
	Name    string
	Address uint64
}

// Vectors reads the 3 interrupt handler addresses. NMI and IRQ handlers with
// a zero address are skipped, multiple handlers can point to the same address.
func Vectors(mem arch.Memory) ([]Vector, error) {
	vectors := []struct {
		name     string
		address  uint64
		optional bool
	}{
		{"Reset", uint64(m6502.ResetAddress), false},
		{"NMI", uint64(m6502.NMIAddress), true},
		{"IRQ", uint64(m6502.IrqAddress), true},
	}

	var handlers []Vector
	for _, v := range vectors {
		address, err := mem.ReadMemory(v.address, 2)
		if err != nil {
			return nil, fmt.Errorf("reading %s address: %w", v.name, err)
		}
		if address == 0 && v.optional {
			continue
		}
		handlers = append(handlers, Vector{Name: v.name, Address: address})
	}
	return handlers, nil
}
