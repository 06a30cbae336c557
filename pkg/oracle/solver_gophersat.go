package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/crillab/gophersat/solver"
	"github.com/go-air/gini/z"
	"github.com/limaJavier/extraction/pkg/asp"
	"github.com/limaJavier/extraction/pkg/ground"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

type gophersatBackend struct {
	logger logrus.FieldLogger
}

// NewGophersatBackend solves in process with gophersat, expressing objective
// bounds as native pseudo-boolean constraints.
func NewGophersatBackend(logger logrus.FieldLogger) Backend {
	return &gophersatBackend{logger: logger.WithField("backend", "gophersat")}
}

func (b *gophersatBackend) Name() string {
	return "gophersat"
}

func (b *gophersatBackend) Ground(ctx context.Context, enc *asp.Encoding) (Grounded, error) {
	g, err := groundInProcess(ctx, enc)
	if err != nil {
		return nil, err
	}

	constrs := lo.Map(g.Clauses, func(clause []z.Lit, _ int) solver.PBConstr {
		return solver.PropClause(lo.Map(clause, func(m z.Lit, _ int) int { return m.Dimacs() })...)
	})

	b.logger.WithFields(logrus.Fields{"vars": g.NumVars(), "clauses": len(constrs)}).Debug("grounded")
	return &gophersatGrounded{ground: g, constrs: constrs, logger: b.logger}, nil
}

type gophersatGrounded struct {
	ground  *ground.Ground
	constrs []solver.PBConstr
	logger  logrus.FieldLogger
	mu      sync.Mutex
}

func (gg *gophersatGrounded) Solve(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSolve, err)
	}
	if len(gg.ground.Seed) > 0 {
		gg.logger.Debug("gophersat takes no seed, ignoring it")
	}
	e := &gophersatEngine{grounded: gg}
	return newLexicographicSession(gg.ground, e, gg.logger), nil
}

// bound is Σ w·l <= k over the terms of a level.
type bound struct {
	level int
	k     int64
}

// gophersatEngine rebuilds the solver for every step since gophersat has no
// assumptions. The fixed bounds survive between steps.
type gophersatEngine struct {
	grounded *gophersatGrounded
	fixed    []bound
	model    []bool
}

func (e *gophersatEngine) first(ctx context.Context, _ []z.Lit) (bool, error) {
	return e.solve(ctx, nil)
}

func (e *gophersatEngine) improve(ctx context.Context, level int, k int64) (bool, error) {
	return e.solve(ctx, &bound{level: level, k: k})
}

func (e *gophersatEngine) fix(level int, k int64) {
	e.fixed = append(e.fixed, bound{level: level, k: k})
}

func (e *gophersatEngine) value(m z.Lit) bool {
	v := int(m.Var()) - 1
	if v < 0 || v >= len(e.model) {
		return !m.IsPos()
	}
	return e.model[v] == m.IsPos()
}

func (e *gophersatEngine) close() {
	e.model = nil
}

// solve checks ctx only before and after the search: a running gophersat
// search cannot be interrupted, so cancellation takes effect once it returns.
func (e *gophersatEngine) solve(ctx context.Context, strict *bound) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	// The ground state is shared by every session of this grounding
	e.grounded.mu.Lock()
	defer e.grounded.mu.Unlock()

	bounds := e.fixed
	if strict != nil {
		bounds = append(append([]bound{}, e.fixed...), *strict)
	}
	constrs := append([]solver.PBConstr{}, e.grounded.constrs...)
	for _, b := range bounds {
		constr, ok := e.pbConstr(b)
		if !ok {
			return false, nil
		}
		if constr != nil {
			constrs = append(constrs, *constr)
		}
	}

	s := solver.New(solver.ParsePBConstrs(constrs))
	status := s.Solve()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if status != solver.Sat {
		return false, nil
	}
	e.model = s.Model()
	return true, nil
}

// pbConstr turns Σ w·l <= k into Σ w·¬l >= W - k. It reports false when the
// bound cannot hold and returns nil when it always holds.
func (e *gophersatEngine) pbConstr(b bound) (*solver.PBConstr, bool) {
	if b.k < 0 {
		return nil, false
	}
	level := e.grounded.ground.Levels[b.level]
	atLeast := level.Upper() - b.k
	if atLeast <= 0 {
		return nil, true
	}
	lits := make([]int, 0, len(level.Terms))
	weights := make([]int, 0, len(level.Terms))
	for _, term := range level.Terms {
		if term.Weight == 0 {
			continue
		}
		lits = append(lits, term.Lit.Not().Dimacs())
		weights = append(weights, int(term.Weight))
	}
	constr := solver.GtEq(lits, weights, int(atLeast))
	return &constr, true
}
