// Package cli handles command line interface logic
package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/retroenv/regtrack/internal/config"
	"github.com/retroenv/regtrack/internal/options"
)

// ParseFlags parses command line flags and returns the program options.
func ParseFlags() (options.Program, error) {
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	var opts options.Program
	readOptionFlags(flags, &opts)

	err := flags.Parse(os.Args[1:])
	args := flags.Args()
	if err != nil || (len(args) == 0 && opts.Batch == "") {
		return opts, &UsageError{flags: flags}
	}

	if err := validateArgs(args); err != nil {
		return opts, err
	}

	if err := validateOptions(opts); err != nil {
		return opts, err
	}

	if opts.Batch == "" {
		opts.Input = args[0]
	}
	return opts, nil
}

// UsageError represents an error that should show usage information
type UsageError struct {
	flags *flag.FlagSet
	msg   string
}

func (e *UsageError) Error() string {
	return e.msg
}

func (e *UsageError) ShowUsage() {
	fmt.Printf("usage: regtrack [options] <file to analyze>\n\n")
	if e.flags != nil {
		e.flags.PrintDefaults()
	}
	fmt.Println()
}

// validateArgs checks if arguments are in correct order
func validateArgs(args []string) error {
	for i, arg := range args {
		if i > 0 && arg[0] == '-' {
			return &UsageError{
				msg: fmt.Sprintf("Potential argument %s found after file to analyze, please pass the file to analyze as last argument", arg),
			}
		}
	}
	return nil
}

// validateOptions checks option values that can be validated without
// knowing the architecture of the input.
func validateOptions(opts options.Program) error {
	if opts.Depth < -1 {
		return fmt.Errorf("invalid depth %d, use -1 for the function maximum", opts.Depth)
	}
	for _, q := range opts.Queries {
		if _, err := config.ParseQuery(q); err != nil {
			return fmt.Errorf("parsing query flag: %w", err)
		}
	}
	return nil
}

// queryList collects the values of a repeated flag.
type queryList struct {
	queries *[]string
}

func (l queryList) String() string {
	if l.queries == nil {
		return ""
	}
	return strings.Join(*l.queries, ",")
}

func (l queryList) Set(s string) error {
	*l.queries = append(*l.queries, s)
	return nil
}

func readOptionFlags(flags *flag.FlagSet, opts *options.Program) {
	flags.StringVar(&opts.Input, "i", "", "name of the input program file")
	flags.StringVar(&opts.Output, "o", "", "name of the output report file, printed on console if no name given")
	flags.StringVar(&opts.Config, "c", "", "YAML config file with engine limits, read-only ranges, entries and queries")
	flags.StringVar(&opts.Batch, "batch", "", "process a batch of given path and file mask, for example *.ch8")
	flags.StringVar(&opts.System, "s", "", "system to analyze for (nes, chip8, x86-64) - if not auto-detected from the file")
	flags.BoolVar(&opts.Binary, "binary", false, "read input file as raw binary file without any header")
	flags.IntVar(&opts.Depth, "depth", 0, "search depth in basic blocks, 0 uses the configured default, -1 the function maximum")
	flags.Var(queryList{queries: &opts.Queries}, "query", "register query as address:register, for example 0x210:v0, can be repeated")
	flags.BoolVar(&opts.NoUnofficial, "no-unofficial", false, "treat unofficial 6502 opcodes as invalid instructions")
	flags.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	flags.BoolVar(&opts.Debug, "debug", false, "enable debugging options for extended logging")
	flags.BoolVar(&opts.Quiet, "q", false, "perform operations quietly")
}
