package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/inter"
	"github.com/go-air/gini/z"
	"github.com/limaJavier/extraction/pkg/asp"
	"github.com/limaJavier/extraction/pkg/ground"
	"github.com/sirupsen/logrus"
)

const (
	satisfiable   = 1
	unsatisfiable = -1
)

type giniBackend struct {
	logger logrus.FieldLogger
}

// NewGiniBackend solves in process with the gini CDCL solver.
func NewGiniBackend(logger logrus.FieldLogger) Backend {
	return &giniBackend{logger: logger.WithField("backend", "gini")}
}

func (b *giniBackend) Name() string {
	return "gini"
}

func (b *giniBackend) Ground(ctx context.Context, enc *asp.Encoding) (Grounded, error) {
	g, err := groundInProcess(ctx, enc)
	if err != nil {
		return nil, err
	}
	b.logger.WithFields(logrus.Fields{"vars": g.NumVars(), "clauses": len(g.Clauses)}).Debug("grounded")
	return &giniGrounded{ground: g, logger: b.logger}, nil
}

func groundInProcess(ctx context.Context, enc *asp.Encoding) (*ground.Ground, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGrounding, err)
	}
	g, err := ground.New(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGrounding, err)
	}
	return g, nil
}

type giniGrounded struct {
	ground *ground.Ground
	logger logrus.FieldLogger
	once   sync.Once
}

func (gg *giniGrounded) Solve(ctx context.Context) (Session, error) {
	opened := false
	gg.once.Do(func() { opened = true })
	if !opened {
		// Bound gates are taught to a single solver
		return nil, fmt.Errorf("%w: grounding already in use by a session", ErrSolve)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSolve, err)
	}

	solver := gini.NewVc(gg.ground.NumVars(), len(gg.ground.Clauses))
	for _, clause := range gg.ground.Clauses {
		for _, m := range clause {
			solver.Add(m)
		}
		solver.Add(z.LitNull)
	}
	for solver.MaxVar() < z.Var(gg.ground.NumVars()) {
		solver.Lit()
	}

	e := &giniEngine{solver: solver, ground: gg.ground, logger: gg.logger}
	return newLexicographicSession(gg.ground, e, gg.logger), nil
}

type giniEngine struct {
	solver *gini.Gini
	ground *ground.Ground
	logger logrus.FieldLogger
}

func (e *giniEngine) first(ctx context.Context, seed []z.Lit) (bool, error) {
	// Assumptions left behind by an abandoned call would leak into the next one
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if len(seed) > 0 {
		e.solver.Assume(seed...)
		ok, err := e.solve(ctx)
		if err != nil || ok {
			return ok, err
		}
		e.logger.Debug("seed rejected, solving without it")
	}
	return e.solve(ctx)
}

func (e *giniEngine) improve(ctx context.Context, level int, k int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e.solver.Assume(e.ground.Bound(e.solver, level, k))
	return e.solve(ctx)
}

func (e *giniEngine) fix(level int, k int64) {
	e.solver.Add(e.ground.Bound(e.solver, level, k))
	e.solver.Add(z.LitNull)
}

func (e *giniEngine) value(m z.Lit) bool {
	return m.Var() <= e.solver.MaxVar() && e.solver.Value(m)
}

func (e *giniEngine) close() {}

func (e *giniEngine) solve(ctx context.Context) (bool, error) {
	var result int
	if ctx.Done() == nil {
		result = e.solver.Solve()
	} else {
		result = waitForSolution(ctx, e.solver.GoSolve())
	}

	switch result {
	case satisfiable:
		return true, nil
	case unsatisfiable:
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return false, fmt.Errorf("%w: gini gave up without an answer", ErrSolve)
}

func waitForSolution(ctx context.Context, gs inter.Solve) int {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return gs.Stop()
		case <-t.C:
			if result, ok := gs.Test(); ok {
				return result
			}
		}
	}
}
