package asp

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
	"github.com/samber/lo"
)

// derivationProgram is the stratified fragment of Program, in mangle syntax.
const derivationProgram = `
Decl root(E).
Decl enode(E, I, Op, C).
Decl child(E, I, Ec).

eclass(E) :- enode(E, _, _, _).

reachable(E) :- root(E).
reachable(Ec) :- reachable(E), child(E, _, Ec).
`

var derivationInfo *analysis.ProgramInfo

func init() {
	unit, err := parse.Unit(strings.NewReader(derivationProgram))
	if err != nil {
		panic(fmt.Sprintf("derivation program does not parse: %v", err))
	}
	derivationInfo, err = analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		panic(fmt.Sprintf("derivation program does not analyze: %v", err))
	}
}

// Derivation holds the relations of Program that do not depend on the choice of sel.
type Derivation struct {
	Eclasses  []int
	Reachable []bool
}

func (d *Derivation) IsReachable(class int) bool {
	return class >= 0 && class < len(d.Reachable) && d.Reachable[class]
}

// Derive evaluates the eclass and reachable relations of fb with mangle.
// fb itself is not modified.
func Derive(fb *FactBase) (*Derivation, error) {
	store := factstore.NewSimpleInMemoryStore()
	for _, atom := range fb.atoms() {
		store.Add(atom)
	}
	if err := engine.EvalProgram(derivationInfo, store); err != nil {
		return nil, fmt.Errorf("%w: cannot derive relations: %w", ErrEncoding, err)
	}

	eclasses, err := queryClasses(store, "eclass")
	if err != nil {
		return nil, err
	}
	reachable, err := queryClasses(store, "reachable")
	if err != nil {
		return nil, err
	}

	eclasses = lo.Uniq(eclasses)
	slices.Sort(eclasses)
	derivation := &Derivation{
		Eclasses:  eclasses,
		Reachable: make([]bool, fb.NumClasses()),
	}
	for _, class := range reachable {
		derivation.Reachable[class] = true
	}
	return derivation, nil
}

func queryClasses(store factstore.FactStore, predicate string) ([]int, error) {
	var classes []int
	err := store.GetFacts(ast.NewQuery(ast.PredicateSym{Symbol: predicate, Arity: 1}), func(atom ast.Atom) error {
		constant, ok := atom.Args[0].(ast.Constant)
		if !ok || constant.Type != ast.NumberType {
			return fmt.Errorf("unexpected argument %v in %v", atom.Args[0], atom)
		}
		classes = append(classes, int(constant.NumValue))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: cannot query %v: %w", ErrEncoding, predicate, err)
	}
	return classes, nil
}
