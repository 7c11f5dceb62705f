package jumpengine

import (
	"context"
	"errors"
	"testing"

	"github.com/retroenv/regtrack/internal/arch/chip8"
	"github.com/retroenv/regtrack/internal/disasm"
	"github.com/retroenv/regtrack/internal/engine"
	"github.com/retroenv/regtrack/internal/program"
	"github.com/retroenv/regtrack/internal/value"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func setup(t *testing.T, code []byte) (*JumpEngine, *mockTracer, *program.Program) {
	t.Helper()
	logger := log.NewTestLogger(t)
	ar := chip8.New()
	prog := program.New(ar)
	assert.NoError(t, prog.AddSegment(program.Segment{
		Start:      chip8.ProgramStart,
		Data:       code,
		Executable: true,
	}))
	prog.AddEntry(chip8.ProgramStart, "start")

	e := engine.New(logger, prog, ar, engine.DefaultOptions())
	prog.OnChange(e.Invalidate)
	dis := disasm.New(logger, prog)
	assert.NoError(t, dis.Process(context.Background()))

	tracer := &mockTracer{Tracer: dis}
	return New(logger, prog, e, tracer), tracer, prog
}

// TestProcessChainedJumps verifies that a jump that is only reachable
// through a resolved jump is resolved in a following round.
func TestProcessChainedJumps(t *testing.T) {
	code := make([]byte, 0x16)
	copy(code, []byte{
		0x60, 0x0A, // 200: ld V0, $0A
		0xB2, 0x00, // 202: jp V0, $200
	})
	copy(code[0x0A:], []byte{
		0x60, 0x04, // 20A: ld V0, $04
		0xB2, 0x10, // 20C: jp V0, $210
	})
	copy(code[0x14:], []byte{0x00, 0xEE}) // 214: ret

	je, tracer, prog := setup(t, code)
	jumps, err := je.Process(context.Background())
	assert.NoError(t, err)

	assert.Equal(t, [][2]uint64{{0x202, 0x20A}, {0x20C, 0x214}}, tracer.added)
	assert.Len(t, jumps, 2)
	assert.Equal(t, uint64(0x202), jumps[0].Address)
	assert.Equal(t, []uint64{0x20A}, jumps[0].Targets)
	assert.Equal(t, uint64(0x20C), jumps[1].Address)
	assert.Equal(t, []uint64{0x214}, jumps[1].Targets)
	assert.False(t, jumps[1].Unresolved())

	assert.True(t, prog.IsType(0x214, program.CodeOffset))
	assert.True(t, prog.IsType(0x20A, program.JumpDestination))
}

func TestProcessUnresolved(t *testing.T) {
	je, tracer, _ := setup(t, []byte{
		0xC0, 0x0F, // 200: rnd V0, $0F
		0xB2, 0x10, // 202: jp V0, $210
	})
	jumps, err := je.Process(context.Background())
	assert.NoError(t, err)

	assert.Empty(t, tracer.added)
	assert.Len(t, jumps, 1)
	assert.True(t, jumps[0].Unresolved())
	assert.Equal(t, value.UnknownAfterInstruction, jumps[0].Value.State())
}

func TestProcessTargetOutsideOfCode(t *testing.T) {
	je, tracer, _ := setup(t, []byte{
		0xB3, 0x00, // 200: jp V0, $300
	})
	jumps, err := je.Process(context.Background())
	assert.NoError(t, err)

	assert.Empty(t, tracer.added)
	assert.Len(t, jumps, 1)
	assert.True(t, jumps[0].Unresolved())
	n, ok := jumps[0].Value.Num()
	assert.True(t, ok)
	assert.Equal(t, uint64(0x300), n)
}

func TestProcessErrors(t *testing.T) {
	code := []byte{
		0x60, 0x04, // 200: ld V0, $04
		0xB2, 0x00, // 202: jp V0, $200
		0x00, 0xEE, // 204: ret
	}

	je, tracer, _ := setup(t, code)
	errTrace := errors.New("trace error")
	tracer.err = errTrace
	_, err := je.Process(context.Background())
	assert.True(t, errors.Is(err, errTrace))

	je, _, _ = setup(t, code)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = je.Process(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestUnresolvedReturn(t *testing.T) {
	tests := []struct {
		name     string
		jump     Jump
		expected bool
	}{
		{"resolved", Jump{Targets: []uint64{0x200}}, false},
		{"unknown", Jump{Value: value.NewUnknownAfter(value.Site{Addr: 0x200})}, true},
		{"subroutine return", Jump{Return: true, Value: value.NewUnknownAtEntry(0x200)}, false},
		{"manipulated return", Jump{Return: true, Value: value.NewUnknownAfter(value.Site{Addr: 0x200})}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.jump.Unresolved())
		})
	}
}
