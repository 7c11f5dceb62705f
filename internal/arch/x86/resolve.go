package x86

import (
	"github.com/retroenv/regtrack/internal/arch"
	"github.com/retroenv/regtrack/internal/engine"
	"github.com/retroenv/regtrack/internal/operand"
	"github.com/retroenv/regtrack/internal/value"
	"golang.org/x/arch/x86/x86asm"
)

// ResolveIndirect resolves JMP reg by tracking the register and JMP [mem]
// by reading the pointer from read-only memory. Jump tables indexed by an
// unbounded register stay unresolved.
func (a *X86) ResolveIndirect(t arch.Tracker, mem arch.Memory, insn engine.Instruction) ([]uint64, value.Value) {
	inst := detail(insn)
	site := insn.Site()
	find := func(op operand.Operand) value.Value { return t.Find(insn.Address, op, 0) }

	var target value.Value
	switch arg := inst.Args[0].(type) {
	case x86asm.Reg:
		r, ok := srcRegister(arg)
		if !ok || r.width != 8 {
			return nil, value.NewUnknownAfter(site)
		}
		target = find(r.operand())

	case x86asm.Mem:
		addr := effectiveAddress(find, arg, insn)
		if !addr.IsNumber() {
			return nil, addr
		}
		target = readPointers(mem, addr, site)

	default:
		return nil, value.NewUnknownAfter(site)
	}
	return arch.Targets(target, addressBits), target
}

// readPointers reads a 64 bit pointer from every address.
func readPointers(mem arch.Memory, addr value.Value, site value.Site) value.Value {
	var res value.Value
	for _, a := range addr.Values() {
		if !mem.IsReadOnly(a, 8) {
			return value.NewUnknownAfter(site)
		}
		ptr, err := mem.ReadMemory(a, 8)
		if err != nil {
			return value.NewUnknownAfter(site)
		}
		res.Union(value.NewNumber(ptr, site))
	}
	return res
}
