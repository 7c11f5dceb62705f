package report

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/retroenv/regtrack/internal/jumpengine"
	"github.com/retroenv/regtrack/internal/value"
	"github.com/retroenv/retrogolib/assert"
)

func testReport() Report {
	return Report{
		File:         "game.ch8",
		System:       "chip8",
		Instructions: 4,
		Jumps: []jumpengine.Jump{
			{Address: 0x202, Targets: []uint64{0x20A}, Value: value.NewNumber(0x20A, value.Site{Addr: 0x200})},
			{Address: 0x20C, Value: value.NewUnknownAfter(value.Site{Addr: 0x208})},
		},
		Queries: []Query{
			{Address: 0x210, Register: "v0", Value: value.NewNumber(5, value.Site{Addr: 0x200})},
		},
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, false)
	assert.False(t, w.color)
	assert.NoError(t, w.Write(testReport()))

	var expected strings.Builder
	expected.WriteString("game.ch8 (chip8): 4 instructions\n")
	expected.WriteString("\nIndirect jumps: 1 of 2 resolved\n")
	jumpRow := "%-7s  %-7s  %-25s  %s\n"
	fmt.Fprintf(&expected, jumpRow, "ADDRESS", "TARGETS", "STATE", "VALUE")
	fmt.Fprintf(&expected, jumpRow, "0x0202", "0x020A", "number", "num 0x20a @0x200")
	fmt.Fprintf(&expected, jumpRow, "0x020C", "", "unknown after instruction", "unknown after instruction @0x208")
	expected.WriteString("\nQueries\n")
	queryRow := "%-7s  %-8s  %-6s  %s\n"
	fmt.Fprintf(&expected, queryRow, "ADDRESS", "REGISTER", "STATE", "VALUE")
	fmt.Fprintf(&expected, queryRow, "0x0210", "v0", "number", "num 0x5 @0x200")

	assert.Equal(t, expected.String(), buf.String())
}

func TestWriteColor(t *testing.T) {
	var buf bytes.Buffer
	w := &Writer{w: &buf, color: true}
	assert.NoError(t, w.Write(testReport()))

	out := buf.String()
	assert.Contains(t, out, colorGreen+"0x0202")
	assert.Contains(t, out, colorYellow+"0x020C")
	assert.Contains(t, out, "@0x208"+colorReset+"\n")
	assert.Contains(t, out, "ADDRESS  TARGETS")
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, New(&buf, true).Write(Report{File: "a.out", System: "x86-64"}))
	assert.Equal(t, "a.out (x86-64): 0 instructions\n", buf.String())
}
