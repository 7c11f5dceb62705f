// Package loader maps program files into the memory of a program.
package loader

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/retroenv/regtrack/internal/arch/chip8"
	"github.com/retroenv/regtrack/internal/arch/m6502"
	"github.com/retroenv/regtrack/internal/arch/x86"
	"github.com/retroenv/regtrack/internal/config"
	"github.com/retroenv/regtrack/internal/options"
	"github.com/retroenv/regtrack/internal/program"
	"github.com/retroenv/retrogolib/arch"
	"github.com/retroenv/retrogolib/arch/system/nes/cartridge"
	"github.com/retroenv/retrogolib/log"
)

// ErrUnsupportedFile is returned for files that can not be mapped for the system.
var ErrUnsupportedFile = errors.New("unsupported file")

// Loader handles loading program files from disk.
type Loader struct {
	logger *log.Logger
}

// New creates a new program loader.
func New(logger *log.Logger) *Loader {
	return &Loader{
		logger: logger,
	}
}

// Load maps the input file of the options into the program and adds its
// entry points. Read-only ranges and entries of the config are added after
// the file was mapped.
func (l *Loader) Load(opts options.Program, system arch.System, cfg config.Config, prog *program.Program) error {
	file, err := os.Open(opts.Input)
	if err != nil {
		return fmt.Errorf("opening file %s: %w", opts.Input, err)
	}
	defer func() { _ = file.Close() }()

	switch system {
	case arch.CHIP8System:
		cart, err := cartridge.LoadBuffer(file)
		if err != nil {
			return fmt.Errorf("loading chip-8 image: %w", err)
		}
		err = l.loadCHIP8(prog, cart.PRG)

	case arch.NES:
		var cart *cartridge.Cartridge
		if opts.Binary {
			cart, err = cartridge.LoadBuffer(file)
		} else {
			cart, err = cartridge.LoadFile(file)
		}
		if err != nil {
			return fmt.Errorf("loading cartridge: %w", err)
		}
		if cart.Mapper != 0 && cart.Mapper != 3 {
			l.logger.Warn("Only the first and last PRG bank are mapped for this mapper",
				log.Uint16("mapper", cart.Mapper))
		}
		err = l.loadNES(prog, cart.PRG)

	case x86.System:
		err = l.loadELF(prog, file)

	default:
		return fmt.Errorf("%w: system '%s'", ErrUnsupportedFile, system)
	}
	if err != nil {
		return err
	}

	for _, r := range cfg.ReadOnly {
		prog.AddReadOnly(program.Range{Start: r.Start, End: r.End})
	}
	for _, e := range cfg.Entries {
		if !prog.IsExecutable(e.Address) {
			return fmt.Errorf("%w: entry %#x is not in executable memory", ErrUnsupportedFile, e.Address)
		}
		prog.AddEntry(e.Address, e.Name)
	}
	return nil
}

// loadCHIP8 maps the program at the CHIP-8 program start. The memory is
// writable, constant data needs to be marked read-only by configuration.
func (l *Loader) loadCHIP8(prog *program.Program, data []byte) error {
	if len(data) == 0 || len(data) > chip8.MaxAddress+1-chip8.ProgramStart {
		return fmt.Errorf("%w: chip-8 image of %d bytes", ErrUnsupportedFile, len(data))
	}
	if err := prog.AddSegment(program.Segment{
		Name:       "ram",
		Start:      chip8.ProgramStart,
		Data:       data,
		Executable: true,
	}); err != nil {
		return fmt.Errorf("mapping chip-8 image: %w", err)
	}
	prog.AddEntry(chip8.ProgramStart, "start")
	return nil
}

// loadNES maps the PRG ROM into the CPU address space at 0x8000. ROMs
// smaller than 32 KiB are mirrored, larger ones get their first and last
// 16 KiB bank mapped like after the reset of most bank switching mappers.
// The entry points are read from the interrupt vectors.
func (l *Loader) loadNES(prog *program.Program, prg []byte) error {
	const (
		codeBaseAddress = 0x8000
		windowSize      = 0x8000
		bankSize        = 0x4000
	)

	var banks [][]byte
	switch size := len(prg); {
	case size == 0:
		return fmt.Errorf("%w: empty PRG ROM", ErrUnsupportedFile)
	case size <= windowSize && windowSize%size == 0:
		for range windowSize / size {
			banks = append(banks, prg)
		}
	case size > windowSize && size%bankSize == 0:
		banks = [][]byte{prg[:bankSize], prg[size-bankSize:]}
	default:
		return fmt.Errorf("%w: PRG ROM size %d", ErrUnsupportedFile, size)
	}

	address := uint64(codeBaseAddress)
	for i, bank := range banks {
		if err := prog.AddSegment(program.Segment{
			Name:       fmt.Sprintf("prg%d", i),
			Start:      address,
			Data:       bank,
			ReadOnly:   true,
			Executable: true,
		}); err != nil {
			return fmt.Errorf("mapping PRG ROM: %w", err)
		}
		address += uint64(len(bank))
	}

	vectors, err := m6502.Vectors(prog)
	if err != nil {
		return fmt.Errorf("reading interrupt vectors: %w", err)
	}
	for _, v := range vectors {
		if v.Address < codeBaseAddress {
			l.logger.Warn("Interrupt vector points outside of PRG ROM",
				log.String("vector", v.Name),
				log.Hex("address", v.Address))
			continue
		}
		prog.AddEntry(v.Address, strings.ToLower(v.Name))
	}
	return nil
}
