package loader

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"

	"github.com/retroenv/regtrack/internal/program"
	"github.com/retroenv/retrogolib/log"
)

// loadELF maps the loadable segments of an x86-64 ELF executable at their
// virtual addresses. The entry point and all function symbols become entry
// points.
func (l *Loader) loadELF(prog *program.Program, r io.ReaderAt) error {
	f, err := elf.NewFile(r)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedFile, err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_X86_64 {
		return fmt.Errorf("%w: %s %s executable", ErrUnsupportedFile, f.Class, f.Machine)
	}

	for i, p := range f.Progs {
		if p.Type != elf.PT_LOAD || p.Memsz == 0 {
			continue
		}
		if p.Filesz > p.Memsz {
			return fmt.Errorf("%w: segment %d file size exceeds memory size", ErrUnsupportedFile, i)
		}

		// the part that is not in the file is zero initialized
		data := make([]byte, p.Memsz)
		if _, err := p.ReadAt(data[:p.Filesz], 0); err != nil {
			return fmt.Errorf("reading segment %d: %w", i, err)
		}
		if err := prog.AddSegment(program.Segment{
			Name:       fmt.Sprintf("segment%d", i),
			Start:      p.Vaddr,
			Data:       data,
			ReadOnly:   p.Flags&elf.PF_W == 0,
			Executable: p.Flags&elf.PF_X != 0,
		}); err != nil {
			return fmt.Errorf("mapping segment %d: %w", i, err)
		}
	}

	if err := l.addSymbols(prog, f); err != nil {
		return err
	}
	if !prog.IsExecutable(f.Entry) {
		return fmt.Errorf("%w: entry point %#x is not in executable memory", ErrUnsupportedFile, f.Entry)
	}
	prog.AddEntry(f.Entry, "start")
	return nil
}

func (l *Loader) addSymbols(prog *program.Program, f *elf.File) error {
	symbols, err := f.Symbols()
	if err != nil {
		if errors.Is(err, elf.ErrNoSymbols) {
			return nil
		}
		return fmt.Errorf("reading symbols: %w", err)
	}

	for _, sym := range symbols {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Value == 0 {
			continue
		}
		if !prog.IsExecutable(sym.Value) {
			l.logger.Debug("Skipping function symbol outside of code",
				log.String("name", sym.Name),
				log.Hex("address", sym.Value))
			continue
		}
		prog.AddEntry(sym.Value, sym.Name)
	}
	return nil
}
