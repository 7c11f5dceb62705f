package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/regtrack/internal/arch/chip8"
	"github.com/retroenv/regtrack/internal/arch/m6502"
	"github.com/retroenv/regtrack/internal/arch/x86"
	"github.com/retroenv/regtrack/internal/config"
	"github.com/retroenv/regtrack/internal/options"
	"github.com/retroenv/regtrack/internal/program"
	"github.com/retroenv/retrogolib/arch"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func createTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.bin")
	assert.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func load(t *testing.T, opts options.Program, system arch.System, cfg config.Config, prog *program.Program) error {
	t.Helper()
	return New(log.NewTestLogger(t)).Load(opts, system, cfg, prog)
}

func TestLoadCHIP8(t *testing.T) {
	path := createTempFile(t, []byte{0x60, 0x05, 0x00, 0xEE, 0x12, 0x34})
	cfg := config.Config{
		ReadOnly: []config.Range{{Start: 0x204, End: 0x205}},
		Entries:  []config.Entry{{Address: 0x202, Name: "handler"}},
	}

	prog := program.New(chip8.New())
	assert.NoError(t, load(t, options.Program{Parameters: options.Parameters{Input: path}}, arch.CHIP8System, cfg, prog))

	assert.Equal(t, []program.Entry{{Address: 0x200, Name: "start"}, {Address: 0x202, Name: "handler"}}, prog.Entries())
	assert.False(t, prog.IsReadOnly(0x200, 2))
	assert.True(t, prog.IsReadOnly(0x204, 2))
	v, err := prog.ReadMemory(0x204, 2)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0x1234), v)

	cfg.Entries = []config.Entry{{Address: 0x300}}
	err = load(t, options.Program{Parameters: options.Parameters{Input: path}}, arch.CHIP8System, cfg, program.New(chip8.New()))
	assert.True(t, errors.Is(err, ErrUnsupportedFile))
}

//nolint:funlen // test functions can be long
func TestLoadNES(t *testing.T) {
	t.Run("16 KiB cartridge is mirrored", func(t *testing.T) {
		prg := make([]byte, 0x4000)
		copy(prg[0x3FFA:], []byte{
			0x00, 0x00, // NMI
			0x00, 0x80, // Reset
			0x10, 0xC0, // IRQ
		})
		data := append([]byte{'N', 'E', 'S', 0x1A, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, prg...)
		path := createTempFile(t, data)

		prog := program.New(m6502.New(m6502.Options{}))
		assert.NoError(t, load(t, options.Program{Parameters: options.Parameters{Input: path}}, arch.NES, config.Config{}, prog))

		segments := prog.Segments()
		assert.Len(t, segments, 2)
		assert.Equal(t, uint64(0x8000), segments[0].Start)
		assert.Equal(t, uint64(0xC000), segments[1].Start)
		assert.True(t, prog.IsReadOnly(0x8000, 0x8000))
		assert.Equal(t, []program.Entry{{Address: 0x8000, Name: "reset"}, {Address: 0xC010, Name: "irq"}}, prog.Entries())
	})

	t.Run("raw binary", func(t *testing.T) {
		prg := make([]byte, 0x2000)
		copy(prg[0x1FFC:], []byte{0x00, 0xE0})
		path := createTempFile(t, prg)

		prog := program.New(m6502.New(m6502.Options{}))
		opts := options.Program{
			Parameters: options.Parameters{Input: path},
			Flags:      options.Flags{Binary: true},
		}
		assert.NoError(t, load(t, opts, arch.NES, config.Config{}, prog))
		assert.Len(t, prog.Segments(), 4)
		assert.Equal(t, []program.Entry{{Address: 0xE000, Name: "reset"}}, prog.Entries())
	})

	t.Run("unsupported size", func(t *testing.T) {
		path := createTempFile(t, make([]byte, 0x3000))
		opts := options.Program{
			Parameters: options.Parameters{Input: path},
			Flags:      options.Flags{Binary: true},
		}
		err := load(t, opts, arch.NES, config.Config{}, program.New(m6502.New(m6502.Options{})))
		assert.True(t, errors.Is(err, ErrUnsupportedFile))
	})
}

// buildELF returns an executable with a single loadable segment that
// starts with the ELF header and ends with the code.
func buildELF(t *testing.T, machine elf.Machine, code []byte) []byte {
	t.Helper()
	const (
		base       = 0x400000
		headerSize = 64 + 56
	)

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     base + headerSize,
		Phoff:     64,
		Ehsize:    64,
		Phentsize: 56,
		Phnum:     1,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	size := uint64(headerSize + len(code))
	var buf bytes.Buffer
	assert.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr))
	assert.NoError(t, binary.Write(&buf, binary.LittleEndian, elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_X),
		Vaddr:  base,
		Paddr:  base,
		Filesz: size,
		Memsz:  size + 0x10,
		Align:  0x1000,
	}))
	buf.Write(code)
	return buf.Bytes()
}

func TestLoadELF(t *testing.T) {
	path := createTempFile(t, buildELF(t, elf.EM_X86_64, []byte{0xC3}))
	prog := program.New(x86.New())
	assert.NoError(t, load(t, options.Program{Parameters: options.Parameters{Input: path}}, x86.System, config.Config{}, prog))

	segments := prog.Segments()
	assert.Len(t, segments, 1)
	assert.Equal(t, uint64(0x400000), segments[0].Start)
	assert.Len(t, segments[0].Data, 64+56+1+0x10)
	assert.True(t, segments[0].ReadOnly)
	assert.True(t, segments[0].Executable)
	assert.Equal(t, []program.Entry{{Address: 0x400078, Name: "start"}}, prog.Entries())

	b, err := prog.ReadMemory(0x400078, 1)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0xC3), b)

	path = createTempFile(t, buildELF(t, elf.EM_386, []byte{0xC3}))
	err = load(t, options.Program{Parameters: options.Parameters{Input: path}}, x86.System, config.Config{}, program.New(x86.New()))
	assert.True(t, errors.Is(err, ErrUnsupportedFile))

	path = createTempFile(t, []byte{0x60, 0x05})
	err = load(t, options.Program{Parameters: options.Parameters{Input: path}}, x86.System, config.Config{}, program.New(x86.New()))
	assert.True(t, errors.Is(err, ErrUnsupportedFile))
}

func TestLoadErrors(t *testing.T) {
	opts := options.Program{Parameters: options.Parameters{Input: "/nonexistent/file.nes"}}
	err := load(t, opts, arch.NES, config.Config{}, program.New(m6502.New(m6502.Options{})))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	path := createTempFile(t, []byte{0x00})
	opts = options.Program{Parameters: options.Parameters{Input: path}}
	err = load(t, opts, arch.System("unknown"), config.Config{}, program.New(chip8.New()))
	assert.True(t, errors.Is(err, ErrUnsupportedFile))
}
