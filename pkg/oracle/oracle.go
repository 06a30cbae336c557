package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/limaJavier/extraction/pkg/asp"
)

var (
	ErrGrounding = errors.New("grounding failed")
	ErrSolve     = errors.New("solve failed")
)

// Symbol is a shown atom of a model with integer arguments, like sel(3,1).
type Symbol struct {
	Name string
	Args []int64
}

func (s Symbol) String() string {
	if len(s.Args) == 0 {
		return s.Name
	}
	args := make([]string, len(s.Args))
	for i, arg := range s.Args {
		args[i] = fmt.Sprint(arg)
	}
	return fmt.Sprintf("%s(%s)", s.Name, strings.Join(args, ","))
}

// Model is one answer of a solve session. Costs holds one value per
// objective priority, highest first, as clingo reports them.
type Model struct {
	Number  int
	Symbols []Symbol
	Costs   []int64
}

type Backend interface {
	Name() string
	// Ground prepares enc for solving. Failures wrap ErrGrounding.
	Ground(ctx context.Context, enc *asp.Encoding) (Grounded, error)
}

type Grounded interface {
	// Solve opens a session that yields improving models. Failures wrap ErrSolve.
	Solve(ctx context.Context) (Session, error)
}

// Session streams models, each strictly better than the last under the
// layered objective. Next returns nil, nil once the search space is exhausted,
// which proves the last model optimal. Close releases the session and is safe
// to call more than once.
type Session interface {
	Next(ctx context.Context) (*Model, error)
	Close() error
}

// Compare orders cost vectors lexicographically.
func Compare(a, b []int64) int {
	for i := 0; i < min(len(a), len(b)); i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return len(a) - len(b)
}
