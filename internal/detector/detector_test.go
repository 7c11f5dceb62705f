package detector

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/regtrack/internal/arch/x86"
	"github.com/retroenv/regtrack/internal/options"
	"github.com/retroenv/retrogolib/arch"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func TestDetect(t *testing.T) {
	logger := log.NewTestLogger(t)
	d := New(logger)

	tests := []struct {
		name       string
		systemOpt  string
		inputFile  string
		wantSystem arch.System
	}{
		{
			name:       "explicit NES system option",
			systemOpt:  "nes",
			inputFile:  "game.bin",
			wantSystem: arch.NES,
		},
		{
			name:       "explicit CHIP8 system option",
			systemOpt:  "chip8",
			inputFile:  "game.bin",
			wantSystem: arch.CHIP8System,
		},
		{
			name:       "explicit x86-64 system option",
			systemOpt:  "X86-64",
			inputFile:  "a.out",
			wantSystem: x86.System,
		},
		{
			name:       "detect from .nes extension",
			inputFile:  "game.nes",
			wantSystem: arch.NES,
		},
		{
			name:       "detect from .ch8 extension",
			inputFile:  "game.ch8",
			wantSystem: arch.CHIP8System,
		},
		{
			name:       "detect from .rom extension",
			inputFile:  "game.rom",
			wantSystem: arch.CHIP8System,
		},
		{
			name:       "detect from .elf extension",
			inputFile:  "tool.ELF",
			wantSystem: x86.System,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := options.Program{
				Parameters: options.Parameters{Input: tt.inputFile},
				Flags:      options.Flags{System: tt.systemOpt},
			}

			got, err := d.Detect(opts)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantSystem, got)
		})
	}

	_, err := d.Detect(options.Program{Flags: options.Flags{System: "gameboy"}})
	assert.True(t, errors.Is(err, ErrUnsupportedSystem))
}

func TestDetectFromFile(t *testing.T) {
	logger := log.NewTestLogger(t)
	d := New(logger)
	dir := t.TempDir()

	tests := []struct {
		name       string
		filename   string
		content    []byte
		wantSystem arch.System
	}{
		{
			name:       "elf header",
			filename:   "tool",
			content:    []byte{0x7F, 'E', 'L', 'F', 2, 1, 1},
			wantSystem: x86.System,
		},
		{
			name:       "ines header",
			filename:   "game.bin",
			content:    []byte{'N', 'E', 'S', 0x1A, 1},
			wantSystem: arch.NES,
		},
		{
			name:       "short file defaults to NES",
			filename:   "short",
			content:    []byte{0x7F},
			wantSystem: arch.NES,
		},
		{
			name:       "unknown content defaults to NES",
			filename:   "game.bin",
			content:    []byte{0xA9, 0x00, 0x8D, 0x00, 0x20},
			wantSystem: arch.NES,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.filename)
			assert.NoError(t, os.WriteFile(path, tt.content, 0o600))

			got, err := d.detectFromFile(path)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantSystem, got)
		})
	}

	_, err := d.detectFromFile(filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
