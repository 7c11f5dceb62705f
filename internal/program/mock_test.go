package program

import (
	"encoding/binary"

	"github.com/retroenv/regtrack/internal/arch"
	"github.com/retroenv/regtrack/internal/engine"
	"github.com/retroenv/regtrack/internal/value"
)

var _ arch.Architecture = (*mockArch)(nil)

// mockArch decodes every byte as a one byte instruction, 0xFF is invalid.
type mockArch struct {
	engine.DefaultArch

	decoded int
}

func (m *mockArch) Name() string                { return "mock" }
func (m *mockArch) ByteOrder() binary.ByteOrder { return binary.LittleEndian }

func (m *mockArch) Decode(mem arch.Memory, address uint64) (engine.Instruction, error) {
	data, err := mem.ReadBytes(address, 1)
	if err != nil {
		return engine.Instruction{}, err
	}
	if data[0] == 0xFF {
		return engine.Instruction{}, arch.ErrInvalidInstruction
	}
	m.decoded++
	return engine.Instruction{
		Address:     address,
		Size:        1,
		Kind:        uint16(data[0]),
		Fallthrough: true,
	}, nil
}

func (m *mockArch) Flow(engine.Instruction) arch.Flow { return arch.Flow{} }

func (m *mockArch) ResolveIndirect(arch.Tracker, arch.Memory, engine.Instruction) ([]uint64, value.Value) {
	return nil, value.Value{}
}

func (m *mockArch) Register(string) (int, bool) { return 0, false }
func (m *mockArch) RegisterName(int) string     { return "" }
