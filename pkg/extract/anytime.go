package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/limaJavier/extraction/pkg/asp"
	"github.com/limaJavier/extraction/pkg/oracle"
	"github.com/sirupsen/logrus"
)

const DefaultTimeBudget = 15 * time.Second

type State int

const (
	Idle State = iota
	Grounded
	Solving
	Timeout
	Exhausted
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Grounded:
		return "grounded"
	case Solving:
		return "solving"
	case Timeout:
		return "timeout"
	case Exhausted:
		return "exhausted"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// outcome is what the loop leaves behind once the session is closed.
type outcome struct {
	best   *oracle.Model
	trace  [][]int64
	models int
	// final is Timeout or Exhausted.
	final State
}

type anytimeLoop struct {
	backend  oracle.Backend
	budget   time.Duration
	now      func() time.Time
	logger   logrus.FieldLogger
	observer func(oracle.Model)
	state    State
}

func (l *anytimeLoop) transition(next State) {
	l.logger.WithFields(logrus.Fields{"from": l.state, "to": next}).Debug("state transition")
	l.state = next
}

// solve grounds enc once and consumes improving models until the session is
// exhausted or the budget has elapsed after a recorded model. A model is only
// ever replaced by a complete later one.
func (l *anytimeLoop) solve(ctx context.Context, enc *asp.Encoding) (outcome, error) {
	start := l.now()
	result := outcome{}

	//** Ground
	grounded, err := l.backend.Ground(ctx, enc)
	if err != nil {
		if !errors.Is(err, oracle.ErrGrounding) {
			err = fmt.Errorf("%w: %w", oracle.ErrGrounding, err)
		}
		return result, err
	}
	l.transition(Grounded)

	//** Open the session
	session, err := grounded.Solve(ctx)
	if err != nil {
		if !errors.Is(err, oracle.ErrSolve) {
			err = fmt.Errorf("%w: %w", oracle.ErrSolve, err)
		}
		return result, err
	}
	l.transition(Solving)
	defer func() {
		if err := session.Close(); err != nil {
			l.logger.WithError(err).Warn("cannot close solve session")
		}
		l.transition(Closed)
	}()

	//** Consume models
	for {
		model, err := session.Next(ctx)
		if err != nil {
			if ctx.Err() != nil && result.best != nil {
				l.logger.WithField("models", result.models).Info("early stop: context done")
				l.transition(Timeout)
				result.final = Timeout
				return result, nil
			}
			return result, err
		}
		if model == nil {
			l.transition(Exhausted)
			result.final = Exhausted
			return result, nil
		}

		result.best = model
		result.models++
		result.trace = append(result.trace, model.Costs)
		l.logger.WithFields(logrus.Fields{"model": model.Number, "costs": model.Costs}).Debug("model")
		if l.observer != nil {
			l.observer(*model)
		}

		if elapsed := l.now().Sub(start); elapsed >= l.budget {
			l.logger.WithFields(logrus.Fields{
				"budget":  l.budget,
				"elapsed": elapsed,
				"models":  result.models,
			}).Info("early stop")
			l.transition(Timeout)
			result.final = Timeout
			return result, nil
		}
	}
}
