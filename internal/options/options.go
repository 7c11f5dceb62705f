// Package options contains the program options.
package options

// Parameters contains file path options.
type Parameters struct {
	Input  string `flag:"i" usage:"input program file"`
	Output string `flag:"o" usage:"output report file (default: stdout)"`
	Config string `flag:"c" usage:"YAML configuration file"`
	Batch  string `flag:"batch" usage:"batch process files matching pattern (e.g. *.ch8)"`
}

// Flags contains behavior options.
type Flags struct {
	System       string   `flag:"s" usage:"target system: nes, chip8, x86-64 (default: auto-detect)"`
	Binary       bool     `flag:"binary" usage:"treat input as raw binary without header"`
	Depth        int      `flag:"depth" usage:"search depth in basic blocks, -1 for the function maximum"`
	Queries      []string `flag:"query" usage:"register query as address:register, can be repeated"`
	NoUnofficial bool     `flag:"no-unofficial" usage:"treat unofficial 6502 opcodes as invalid"`
	NoColor      bool     `flag:"no-color" usage:"disable colored output"`
	Debug        bool     `flag:"debug" usage:"enable debug logging"`
	Quiet        bool     `flag:"q" usage:"quiet mode"`
}

// Program options of the register tracker.
type Program struct {
	Parameters
	Flags
}
