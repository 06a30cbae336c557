package extract

import (
	"errors"
	"fmt"

	"github.com/limaJavier/extraction/pkg/asp"
	"github.com/limaJavier/extraction/pkg/egraph"
	"github.com/limaJavier/extraction/pkg/oracle"
)

// Unselected marks a class that is not part of the selection.
const Unselected = -1

var ErrInconsistent = errors.New("inconsistent model")

// InconsistencyError reports a model atom that the encoding could never have
// produced. It always wraps ErrInconsistent.
type InconsistencyError struct {
	Symbol oracle.Symbol
	Reason string
}

func (err *InconsistencyError) Error() string {
	return fmt.Sprintf("%v: atom %v %v", ErrInconsistent, err.Symbol, err.Reason)
}

func (err *InconsistencyError) Unwrap() error {
	return ErrInconsistent
}

// Decode turns the sel/2 atoms of model into a dense choice table over the
// classes of g. Classes without a sel atom stay Unselected.
func Decode(model *oracle.Model, g *egraph.EGraph) ([]int, error) {
	numClasses := g.NumClasses()
	choices := make([]int, numClasses)
	for i := range choices {
		choices[i] = Unselected
	}

	for _, symbol := range model.Symbols {
		if symbol.Name != asp.SelPredicate || len(symbol.Args) != 2 {
			return nil, &InconsistencyError{Symbol: symbol, Reason: "is not shaped sel/2"}
		}
		class, index := symbol.Args[0], symbol.Args[1]
		if class < 0 || class >= int64(numClasses) {
			return nil, &InconsistencyError{Symbol: symbol, Reason: fmt.Sprintf("names a class outside [0, %d)", numClasses)}
		}
		if nodes := int64(len(g.Classes[class].Nodes)); index < 0 || index >= nodes {
			return nil, &InconsistencyError{Symbol: symbol, Reason: fmt.Sprintf("names a node outside [0, %d) of class %d", nodes, class)}
		}
		if choices[class] != Unselected {
			return nil, &InconsistencyError{Symbol: symbol, Reason: fmt.Sprintf("selects class %d twice", class)}
		}
		choices[class] = int(index)
	}
	return choices, nil
}
