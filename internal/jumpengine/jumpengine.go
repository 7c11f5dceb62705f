// Package jumpengine resolves indirect jumps with the register tracker and
// feeds the targets back into the code tracer until no new code is found.
package jumpengine

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/retroenv/regtrack/internal/arch"
	"github.com/retroenv/regtrack/internal/program"
	"github.com/retroenv/regtrack/internal/value"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrogolib/set"
)

// MaxRounds bounds the resolve and trace iterations.
const MaxRounds = 16

// Tracer traces the code that becomes reachable through resolved jumps.
type Tracer interface {
	IndirectJumps() []uint64
	AddJumpTarget(ctx context.Context, from, target uint64) error
}

// Jump is the result of resolving one indirect jump.
type Jump struct {
	Address uint64
	Targets []uint64
	Value   value.Value // the value the targets were computed from
	Return  bool        // the jump returns to the caller
}

// Unresolved returns whether no target was found for a jump that is not a
// plain subroutine return.
func (j Jump) Unresolved() bool {
	return len(j.Targets) == 0 && !(j.Return && j.Value.State() == value.UnknownAtFunctionEntry)
}

// JumpEngine resolves the indirect jumps of a traced program.
type JumpEngine struct {
	logger  *log.Logger
	prog    *program.Program
	tracker arch.Tracker
	tracer  Tracer

	added map[uint64]set.Set[uint64] // targets already passed to the tracer, by jump address
	jumps map[uint64]Jump
}

// New returns a jump engine that resolves the jumps found by the tracer.
func New(logger *log.Logger, prog *program.Program, tracker arch.Tracker, tracer Tracer) *JumpEngine {
	return &JumpEngine{
		logger:  logger,
		prog:    prog,
		tracker: tracker,
		tracer:  tracer,
		added:   map[uint64]set.Set[uint64]{},
		jumps:   map[uint64]Jump{},
	}
}

// Process resolves all indirect jumps until a round adds no new targets or
// the round limit is reached. It returns the final resolution of every jump,
// sorted by address.
func (j *JumpEngine) Process(ctx context.Context) ([]Jump, error) {
	for round := 1; ; round++ {
		found, err := j.resolveRound(ctx)
		if err != nil {
			return nil, err
		}
		if !found {
			j.logger.Debug("Indirect jumps resolved", log.Int("rounds", round))
			break
		}
		if round == MaxRounds {
			j.logger.Warn("Indirect jump resolving did not settle", log.Int("rounds", round))
			break
		}
	}
	return j.Jumps(), nil
}

// Jumps returns the current resolution of all processed jumps.
func (j *JumpEngine) Jumps() []Jump {
	jumps := make([]Jump, 0, len(j.jumps))
	for _, jump := range j.jumps {
		jumps = append(jumps, jump)
	}
	slices.SortFunc(jumps, func(a, b Jump) int {
		return cmp.Compare(a.Address, b.Address)
	})
	return jumps
}

// resolveRound resolves every known indirect jump once and returns whether
// a new target was passed to the tracer.
func (j *JumpEngine) resolveRound(ctx context.Context) (bool, error) {
	var found bool
	ar := j.prog.Arch()

	for _, address := range j.tracer.IndirectJumps() {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("resolving indirect jumps: %w", err)
		}

		insn, err := j.prog.Decode(address)
		if err != nil {
			return false, fmt.Errorf("decoding indirect jump: %w", err)
		}
		targets, val := ar.ResolveIndirect(j.tracker, j.prog, insn)
		jump := Jump{
			Address: address,
			Value:   val,
			Return:  ar.Flow(insn).Return,
		}

		for _, target := range targets {
			if !j.prog.IsExecutable(target) {
				j.logger.Debug("Ignoring jump target outside of code",
					log.Hex("address", address),
					log.Hex("target", target))
				continue
			}
			jump.Targets = append(jump.Targets, target)

			added, ok := j.added[address]
			if !ok {
				added = set.New[uint64]()
				j.added[address] = added
			}
			if added.Contains(target) {
				continue
			}
			added.Add(target)
			found = true

			j.logger.Debug("Resolved indirect jump",
				log.Hex("address", address),
				log.Hex("target", target))
			if err := j.tracer.AddJumpTarget(ctx, address, target); err != nil {
				return false, fmt.Errorf("adding jump target: %w", err)
			}
		}
		j.jumps[address] = jump
	}
	return found, nil
}
