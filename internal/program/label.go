package program

import "fmt"

const (
	funcNaming  = "_func_%04x"
	jumpNaming  = "_jump_%04x"
	labelNaming = "_label_%04x"
)

// Label returns the name of a code address: the entry point name, or a
// generated name for function starts and jump destinations.
func (p *Program) Label(address uint64) string {
	if name := p.EntryName(address); name != "" {
		return name
	}
	switch {
	case p.IsType(address, EntryPoint|CallDestination):
		return fmt.Sprintf(funcNaming, address)
	case p.IsType(address, IndirectJump):
		return fmt.Sprintf(jumpNaming, address)
	default:
		return fmt.Sprintf(labelNaming, address)
	}
}
