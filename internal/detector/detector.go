// Package detector handles system architecture detection.
package detector

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/retroenv/regtrack/internal/arch/x86"
	"github.com/retroenv/regtrack/internal/options"
	"github.com/retroenv/retrogolib/arch"
	"github.com/retroenv/retrogolib/log"
)

// ErrUnsupportedSystem is returned for an unknown system option.
var ErrUnsupportedSystem = errors.New("unsupported system")

var (
	elfMagic  = []byte{0x7F, 'E', 'L', 'F'}
	inesMagic = []byte{'N', 'E', 'S', 0x1A}
)

// Detector handles system architecture detection from options, file
// extensions and file headers.
type Detector struct {
	logger *log.Logger
}

// New creates a new system detector.
func New(logger *log.Logger) *Detector {
	return &Detector{
		logger: logger,
	}
}

// Detect determines the system architecture from options or file auto-detection.
// It first checks if a system is explicitly specified in options, otherwise
// attempts to detect the system from the input filename extension and the
// header of the file.
func (d *Detector) Detect(opts options.Program) (arch.System, error) {
	if opts.System != "" {
		return systemFromString(opts.System)
	}

	system, err := d.detectFromFile(opts.Input)
	if err != nil {
		return "", err
	}
	d.logger.Debug("Auto-detected system",
		log.Stringer("system", system),
		log.String("file", opts.Input))
	return system, nil
}

func systemFromString(s string) (arch.System, error) {
	switch strings.ToLower(s) {
	case string(x86.System), "x86", "amd64", "elf":
		return x86.System, nil
	}
	system, _ := arch.SystemFromString(s)
	if system != arch.NES && system != arch.CHIP8System {
		return "", fmt.Errorf("%w '%s'", ErrUnsupportedSystem, s)
	}
	return system, nil
}

// detectFromFile determines the system type based on file extension and
// the magic bytes of the file.
func (d *Detector) detectFromFile(filename string) (arch.System, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".ch8", ".rom":
		// ROM files could be CHIP-8, default to CHIP-8 for .rom extension
		return arch.CHIP8System, nil
	case ".nes":
		return arch.NES, nil
	case ".elf":
		return x86.System, nil
	}

	header, err := readHeader(filename)
	if err != nil {
		return "", err
	}
	switch {
	case bytes.HasPrefix(header, elfMagic):
		return x86.System, nil
	case bytes.HasPrefix(header, inesMagic):
		return arch.NES, nil
	default:
		// Default to M6502/NES for unknown files
		return arch.NES, nil
	}
}

func readHeader(filename string) ([]byte, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening file %s: %w", filename, err)
	}
	defer func() { _ = file.Close() }()

	header := make([]byte, len(elfMagic))
	n, err := io.ReadFull(file, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading file header: %w", err)
	}
	return header[:n], nil
}
