// Package pipeline orchestrates the analysis workflow stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/retroenv/regtrack/internal/arch"
	"github.com/retroenv/regtrack/internal/arch/chip8"
	"github.com/retroenv/regtrack/internal/arch/m6502"
	"github.com/retroenv/regtrack/internal/arch/x86"
	"github.com/retroenv/regtrack/internal/config"
	"github.com/retroenv/regtrack/internal/detector"
	"github.com/retroenv/regtrack/internal/disasm"
	"github.com/retroenv/regtrack/internal/engine"
	"github.com/retroenv/regtrack/internal/jumpengine"
	"github.com/retroenv/regtrack/internal/loader"
	"github.com/retroenv/regtrack/internal/operand"
	"github.com/retroenv/regtrack/internal/options"
	"github.com/retroenv/regtrack/internal/program"
	"github.com/retroenv/regtrack/internal/report"
	archsys "github.com/retroenv/retrogolib/arch"
	"github.com/retroenv/retrogolib/log"
)

// ErrUnknownRegister is returned for a query of a register that the
// architecture does not have.
var ErrUnknownRegister = errors.New("unknown register")

// Pipeline orchestrates the complete analysis workflow.
type Pipeline struct {
	logger   *log.Logger
	detector *detector.Detector
	loader   *loader.Loader
}

// New creates a new analysis pipeline.
func New(logger *log.Logger) *Pipeline {
	return &Pipeline{
		logger:   logger,
		detector: detector.New(logger),
		loader:   loader.New(logger),
	}
}

// Execute detects the system of the input file, loads and traces it,
// resolves its indirect jumps, answers the register queries and writes the
// report.
func (p *Pipeline) Execute(ctx context.Context, opts options.Program, cfg config.Config, writer io.Writer) (report.Report, error) {
	system, err := p.detector.Detect(opts)
	if err != nil {
		return report.Report{}, fmt.Errorf("detecting system: %w", err)
	}

	ar, err := newArchitecture(system, opts)
	if err != nil {
		return report.Report{}, err
	}

	prog := program.New(ar)
	if err := p.loader.Load(opts, system, cfg, prog); err != nil {
		return report.Report{}, fmt.Errorf("loading program: %w", err)
	}
	p.printInfo(opts, prog, system)

	rep, err := p.Analyze(ctx, opts, cfg, prog)
	if err != nil {
		return report.Report{}, err
	}
	rep.File = opts.Input
	rep.System = system.String()

	if err := report.New(writer, opts.NoColor).Write(rep); err != nil {
		return report.Report{}, err
	}
	return rep, nil
}

// Analyze runs the analysis of an already loaded program. This is useful for
// testing and programmatic usage where the program is built in memory.
func (p *Pipeline) Analyze(ctx context.Context, opts options.Program, cfg config.Config,
	prog *program.Program) (report.Report, error) {

	queries, err := collectQueries(opts, cfg)
	if err != nil {
		return report.Report{}, err
	}

	e := engine.New(p.logger, prog, prog.Arch(), cfg.EngineOptions())
	prog.OnChange(e.Invalidate)

	dis := disasm.New(p.logger, prog)
	if err := dis.Process(ctx); err != nil {
		return report.Report{}, fmt.Errorf("tracing code: %w", err)
	}

	jumps, err := jumpengine.New(p.logger, prog, e, dis).Process(ctx)
	if err != nil {
		return report.Report{}, fmt.Errorf("resolving indirect jumps: %w", err)
	}
	for _, j := range jumps {
		if j.Unresolved() {
			p.logger.Warn("Unresolved indirect jump",
				log.Hex("address", j.Address),
				log.String("label", prog.Label(j.Address)),
				log.Stringer("value", j.Value))
		}
	}

	answers, err := p.answerQueries(prog, e, queries, opts.Depth)
	if err != nil {
		return report.Report{}, err
	}

	return report.Report{
		Instructions: len(prog.Instructions()),
		Jumps:        jumps,
		Queries:      answers,
	}, nil
}

// newArchitecture creates the architecture for the specified system.
func newArchitecture(system archsys.System, opts options.Program) (arch.Architecture, error) {
	switch system {
	case archsys.NES:
		return m6502.New(m6502.Options{NoUnofficialInstructions: opts.NoUnofficial}), nil
	case archsys.CHIP8System:
		return chip8.New(), nil
	case x86.System:
		return x86.New(), nil
	default:
		return nil, fmt.Errorf("unsupported system '%s'", system)
	}
}

// collectQueries returns the queries of the config file followed by the
// queries of the command line.
func collectQueries(opts options.Program, cfg config.Config) ([]config.Query, error) {
	queries := make([]config.Query, 0, len(cfg.Queries)+len(opts.Queries))
	queries = append(queries, cfg.Queries...)
	for _, s := range opts.Queries {
		q, err := config.ParseQuery(s)
		if err != nil {
			return nil, fmt.Errorf("parsing query: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, nil
}

func (p *Pipeline) answerQueries(prog *program.Program, e *engine.Engine,
	queries []config.Query, depth int) ([]report.Query, error) {

	ar := prog.Arch()
	answers := make([]report.Query, 0, len(queries))

	for _, q := range queries {
		reg, ok := ar.Register(q.Register)
		if !ok {
			return nil, fmt.Errorf("%w '%s' for %s", ErrUnknownRegister, q.Register, ar.Name())
		}
		if !prog.IsType(q.Address, program.CodeOffset) {
			p.logger.Warn("Query address is not traced code",
				log.Hex("address", q.Address))
		}

		op := operand.NewRegister(reg, ar.RegisterWidth(reg), false)
		v := e.Find(q.Address, op, depth)
		p.logger.Debug("Answered query",
			log.Hex("address", q.Address),
			log.String("label", prog.Label(q.Address)),
			log.Stringer("register", op),
			log.Stringer("value", v))

		answers = append(answers, report.Query{
			Address:  q.Address,
			Register: ar.RegisterName(reg),
			Value:    v,
		})
	}
	return answers, nil
}

// printInfo prints information about the program being processed.
func (p *Pipeline) printInfo(opts options.Program, prog *program.Program, system archsys.System) {
	if opts.Quiet {
		return
	}

	p.logger.Info("Processing program",
		log.String("file", opts.Input),
		log.Stringer("system", system),
		log.String("arch", prog.Arch().Name()),
		log.Int("entries", len(prog.Entries())),
	)
}
