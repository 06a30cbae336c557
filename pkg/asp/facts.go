package asp

import (
	"github.com/google/mangle/ast"
	"github.com/google/mangle/factstore"
)

const (
	RootPredicate      = "root"
	EnodePredicate     = "enode"
	ChildPredicate     = "child"
	BottomSelPredicate = "bottomsel"
	SelPredicate       = "sel"
)

type Root struct {
	Class int
}

type Enode struct {
	Class int
	Index int
	Op    string
	Cost  int64
}

type Child struct {
	Class      int
	Index      int
	ChildClass int
}

// BottomSel biases the search towards the choice of a bottom-up extraction.
type BottomSel struct {
	Class int
	Index int
}

func (r Root) atom() ast.Atom {
	return ast.NewAtom(RootPredicate, ast.Number(int64(r.Class)))
}

func (e Enode) atom() ast.Atom {
	return ast.NewAtom(EnodePredicate, ast.Number(int64(e.Class)), ast.Number(int64(e.Index)), ast.String(e.Op), ast.Number(e.Cost))
}

func (c Child) atom() ast.Atom {
	return ast.NewAtom(ChildPredicate, ast.Number(int64(c.Class)), ast.Number(int64(c.Index)), ast.Number(int64(c.ChildClass)))
}

func (b BottomSel) atom() ast.Atom {
	return ast.NewAtom(BottomSelPredicate, ast.Number(int64(b.Class)), ast.Number(int64(b.Index)))
}

// FactBase keeps the facts of one extraction in insertion order, grouped by
// category, backed by a mangle store that rejects duplicate tuples.
type FactBase struct {
	Roots      []Root
	Enodes     []Enode
	Children   []Child
	BottomSels []BottomSel

	store factstore.FactStore
}

func NewFactBase() *FactBase {
	return &FactBase{store: factstore.NewSimpleInMemoryStore()}
}

// AddRoot inserts r and reports whether it was new.
func (fb *FactBase) AddRoot(r Root) bool {
	if !fb.store.Add(r.atom()) {
		return false
	}
	fb.Roots = append(fb.Roots, r)
	return true
}

func (fb *FactBase) AddEnode(e Enode) bool {
	if !fb.store.Add(e.atom()) {
		return false
	}
	fb.Enodes = append(fb.Enodes, e)
	return true
}

func (fb *FactBase) AddChild(c Child) bool {
	if !fb.store.Add(c.atom()) {
		return false
	}
	fb.Children = append(fb.Children, c)
	return true
}

func (fb *FactBase) AddBottomSel(b BottomSel) bool {
	if !fb.store.Add(b.atom()) {
		return false
	}
	fb.BottomSels = append(fb.BottomSels, b)
	return true
}

// Len is the total number of facts across all categories.
func (fb *FactBase) Len() int {
	return len(fb.Roots) + len(fb.Enodes) + len(fb.Children) + len(fb.BottomSels)
}

// NumClasses is one past the highest class id mentioned by any fact.
func (fb *FactBase) NumClasses() int {
	highest := -1
	for _, r := range fb.Roots {
		highest = max(highest, r.Class)
	}
	for _, e := range fb.Enodes {
		highest = max(highest, e.Class)
	}
	for _, c := range fb.Children {
		highest = max(highest, c.Class, c.ChildClass)
	}
	return highest + 1
}

// atoms returns the structural facts, seed facts excluded.
func (fb *FactBase) atoms() []ast.Atom {
	atoms := make([]ast.Atom, 0, len(fb.Roots)+len(fb.Enodes)+len(fb.Children))
	for _, r := range fb.Roots {
		atoms = append(atoms, r.atom())
	}
	for _, e := range fb.Enodes {
		atoms = append(atoms, e.atom())
	}
	for _, c := range fb.Children {
		atoms = append(atoms, c.atom())
	}
	return atoms
}
