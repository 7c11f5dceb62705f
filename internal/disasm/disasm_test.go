package disasm

import (
	"context"
	"errors"
	"testing"

	"github.com/retroenv/regtrack/internal/arch/chip8"
	"github.com/retroenv/regtrack/internal/engine"
	"github.com/retroenv/regtrack/internal/program"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

var testCode = []byte{
	0x22, 0x08, // 200: call $208
	0x30, 0x01, // 202: se V0, $01
	0x12, 0x00, // 204: jp $200
	0xB2, 0x00, // 206: jp V0, $200
	0x00, 0xEE, // 208: ret
	0xFF, 0xFF, // 20A: invalid
}

func newTestProgram(t *testing.T) *program.Program {
	t.Helper()
	prog := program.New(chip8.New())
	assert.NoError(t, prog.AddSegment(program.Segment{
		Name:       "ram",
		Start:      chip8.ProgramStart,
		Data:       testCode,
		Executable: true,
	}))
	prog.AddEntry(chip8.ProgramStart, "start")
	return prog
}

func TestProcess(t *testing.T) {
	prog := newTestProgram(t)
	dis := New(log.NewTestLogger(t), prog)
	assert.NoError(t, dis.Process(context.Background()))

	assert.Equal(t, []uint64{0x200, 0x202, 0x204, 0x206, 0x208}, prog.Addresses(program.CodeOffset))
	assert.Equal(t, []uint64{0x206}, dis.IndirectJumps())
	assert.True(t, prog.IsType(0x206, program.IndirectJump))

	// calls mark function starts without an edge into the function
	assert.True(t, prog.IsFunctionStart(0x208))
	assert.Empty(t, prog.Predecessors(0x208))

	assert.Equal(t, []engine.Xref{
		{From: 0x204, To: 0x200, Kind: engine.Jump},
	}, prog.Predecessors(0x200))
	assert.Equal(t, []engine.Xref{
		{From: 0x202, To: 0x206, Kind: engine.Jump},
		{From: 0x202, To: 0x204, Kind: engine.Flow},
	}, prog.Successors(0x202))
	assert.Empty(t, prog.Successors(0x206))
	assert.Empty(t, prog.Successors(0x208))
}

func TestAddJumpTarget(t *testing.T) {
	prog := newTestProgram(t)
	dis := New(log.NewTestLogger(t), prog)
	assert.NoError(t, dis.Process(context.Background()))

	var changed []uint64
	prog.OnChange(func(to, _ uint64) {
		changed = append(changed, to)
	})

	assert.NoError(t, dis.AddJumpTarget(context.Background(), 0x206, 0x20A))
	assert.Equal(t, []uint64{0x20A}, changed)
	assert.True(t, prog.IsType(0x20A, program.JumpDestination))
	assert.False(t, prog.IsType(0x20A, program.CodeOffset))
	assert.Len(t, prog.Predecessors(0x20A), 1)
}

func TestProcessCanceled(t *testing.T) {
	prog := newTestProgram(t)
	dis := New(log.NewTestLogger(t), prog)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := dis.Process(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, prog.Addresses(program.CodeOffset))
}
