package extract

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/limaJavier/extraction/pkg/asp"
	"github.com/limaJavier/extraction/pkg/egraph"
	"github.com/limaJavier/extraction/pkg/metrics"
	"github.com/limaJavier/extraction/pkg/oracle"
	"github.com/sirupsen/logrus"
)

var ErrNoModelFound = errors.New("no valid extraction exists")

// Result is a legal selection. Choices is indexed by class id and holds
// Unselected for classes outside the selection.
type Result struct {
	Choices []int
	// Objective is the cost vector of the last model, highest priority first.
	Objective []int64
	// Trace holds the objective of every consumed model in order.
	Trace    [][]int64
	Models   int
	Optimal  bool
	Duration time.Duration
}

func (r Result) Cost(g *egraph.EGraph) float64 {
	return g.DagCost(r.Choices)
}

type Extractor interface {
	// Extract selects one node for every class reachable from roots. A nil
	// roots uses g.Roots.
	Extract(ctx context.Context, g *egraph.EGraph, roots []int) (Result, error)
}

type Option func(*aspExtractor)

func WithTimeBudget(budget time.Duration) Option {
	return func(e *aspExtractor) {
		e.budget = budget
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *aspExtractor) {
		e.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *aspExtractor) {
		e.now = now
	}
}

func WithTreeCostBound(bound int64) Option {
	return func(e *aspExtractor) {
		e.treeCostBound = bound
	}
}

// WithBottomUpSeed biases the first model towards the greedy bottom-up selection.
func WithBottomUpSeed(enabled bool) Option {
	return func(e *aspExtractor) {
		e.seed = enabled
	}
}

// WithObserver calls fn with every model as soon as it is recorded.
func WithObserver(fn func(oracle.Model)) Option {
	return func(e *aspExtractor) {
		e.observer = fn
	}
}

type aspExtractor struct {
	backend       oracle.Backend
	budget        time.Duration
	logger        logrus.FieldLogger
	now           func() time.Time
	treeCostBound int64
	seed          bool
	observer      func(oracle.Model)
}

func NewAspExtractor(backend oracle.Backend, opts ...Option) Extractor {
	extractor := &aspExtractor{
		backend:       backend,
		budget:        DefaultTimeBudget,
		logger:        logrus.StandardLogger(),
		now:           time.Now,
		treeCostBound: asp.DefaultTreeCostBound,
	}
	for _, opt := range opts {
		opt(extractor)
	}
	return extractor
}

func (e *aspExtractor) Extract(ctx context.Context, g *egraph.EGraph, roots []int) (Result, error) {
	if roots == nil {
		roots = g.Roots
	}
	logger := e.logger.WithFields(logrus.Fields{
		"backend": e.backend.Name(),
		"run":     uuid.NewString(),
	})
	start := e.now()

	//** Encode
	encOptions := []asp.Option{asp.WithTreeCostBound(e.treeCostBound)}
	if e.seed {
		seed, err := NewBottomUpExtractor().Extract(ctx, g, roots)
		if err == nil {
			encOptions = append(encOptions, asp.WithSeed(seed.Choices))
		} else {
			logger.WithError(err).Debug("no bottom-up seed")
		}
	}
	enc, err := asp.Encode(g, roots, encOptions...)
	if err != nil {
		e.observe(metrics.Failed, 0, start)
		return Result{}, err
	}
	logger.WithFields(logrus.Fields{"classes": g.NumClasses(), "facts": enc.Facts.Len()}).Debug("encoded")

	//** Solve
	loop := &anytimeLoop{
		backend:  e.backend,
		budget:   e.budget,
		now:      e.now,
		logger:   logger,
		observer: e.observer,
	}
	solved, err := loop.solve(ctx, enc)
	if err != nil {
		e.observe(metrics.Failed, solved.models, start)
		return Result{}, err
	}
	if solved.best == nil {
		e.observe(metrics.NoModel, 0, start)
		return Result{}, ErrNoModelFound
	}

	//** Decode
	choices, err := Decode(solved.best, g)
	if err != nil {
		e.observe(metrics.Failed, solved.models, start)
		return Result{}, err
	}

	label := metrics.Timeout
	if solved.final == Exhausted {
		label = metrics.Optimal
	}
	duration := e.observe(label, solved.models, start)
	return Result{
		Choices:   choices,
		Objective: solved.best.Costs,
		Trace:     solved.trace,
		Models:    solved.models,
		Optimal:   solved.final == Exhausted,
		Duration:  duration,
	}, nil
}

func (e *aspExtractor) observe(label string, models int, start time.Time) time.Duration {
	elapsed := e.now().Sub(start)
	metrics.ObserveRun(e.backend.Name(), label, models, elapsed)
	return elapsed
}
