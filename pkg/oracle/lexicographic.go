package oracle

import (
	"context"

	"github.com/go-air/gini/z"
	"github.com/limaJavier/extraction/pkg/asp"
	"github.com/limaJavier/extraction/pkg/ground"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// engine is the part of an in-process backend that actually searches.
type engine interface {
	// first looks for any model. The seed is a hint.
	first(ctx context.Context, seed []z.Lit) (bool, error)
	// improve looks for a model whose internal value at level is at most k,
	// on top of every level fixed so far.
	improve(ctx context.Context, level int, k int64) (bool, error)
	// fix makes the internal value at level at most k for every later call.
	fix(level int, k int64)
	value(m z.Lit) bool
	close()
}

// lexicographicSession improves one objective level at a time, highest
// priority first. When a level cannot improve any further it is fixed at its
// optimum and the search moves on to the next one.
type lexicographicSession struct {
	ground *ground.Ground
	engine engine
	logger logrus.FieldLogger

	best    []int64
	level   int
	number  int
	started bool
	done    bool
}

func newLexicographicSession(g *ground.Ground, e engine, logger logrus.FieldLogger) *lexicographicSession {
	return &lexicographicSession{ground: g, engine: e, logger: logger}
}

func (s *lexicographicSession) Next(ctx context.Context) (*Model, error) {
	if s.done {
		return nil, nil
	}

	if !s.started {
		s.started = true
		if s.ground.Unsat {
			s.done = true
			return nil, nil
		}
		ok, err := s.engine.first(ctx, s.ground.Seed)
		if err != nil {
			s.started = false
			return nil, err
		}
		if !ok {
			s.done = true
			return nil, nil
		}
		return s.record(), nil
	}

	for s.level < len(s.ground.Levels) {
		target := s.best[s.level] - 1
		if target >= 0 {
			ok, err := s.engine.improve(ctx, s.level, target)
			if err != nil {
				return nil, err
			}
			if ok {
				return s.record(), nil
			}
		}
		s.logger.WithFields(logrus.Fields{
			"level": s.ground.Levels[s.level].Name,
			"value": s.best[s.level],
		}).Debug("level optimal")
		s.engine.fix(s.level, s.best[s.level])
		s.level++
	}

	s.done = true
	return nil, nil
}

func (s *lexicographicSession) record() *Model {
	s.number++
	s.best = lo.Map(s.ground.Levels, func(l *ground.Level, _ int) int64 { return l.Internal(s.engine.value) })
	selected := s.ground.Selected(s.engine.value)
	return &Model{
		Number: s.number,
		Symbols: lo.Map(selected, func(pair [2]int, _ int) Symbol {
			return Symbol{Name: asp.SelPredicate, Args: []int64{int64(pair[0]), int64(pair[1])}}
		}),
		Costs: s.ground.Values(s.engine.value),
	}
}

func (s *lexicographicSession) Close() error {
	s.done = true
	if s.engine != nil {
		s.engine.close()
		s.engine = nil
	}
	return nil
}
