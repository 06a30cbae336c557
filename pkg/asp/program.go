package asp

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Program is the rule program every encoding is solved with. Priorities run
// from @4 (true cost) down to @1 (symmetry breaking).
const Program = `#const treecost_bound=20.

eclass(E) :- enode(E,_,_,_).

% an enode may be selected once every class it references is selected
{ sel(E,I) } :- enode(E,I,_,_), selclass(Ec) : child(E,I,Ec).

selclass(E) :- sel(E,_).

:- root(E), not selclass(E).

% redundant with the search structure
:- eclass(E), #count { E,I : sel(E,I) } > 1.

#minimize { C@4,E,I : sel(E,I), enode(E,I,_,C) }.

% tree cost of a node is defined once every child class has one
treecost(E,C) :- treecost(E,_,_), C = #min { C1,I : treecost(E,I,C1) }.
treecost(E,I,C1+Cs) :- enode(E,I,_,C1), treecost(Ec,_) : child(E,I,Ec);
    Cs = #sum { C,Ec : child(E,I,Ec), treecost(Ec,C) }, Cs < treecost_bound.
treesel(E,I) :- treecost(E,I,C), treecost(E,C).

#maximize { 1@3,E : treesel(E,I), sel(E,I) }.

#minimize { 1@2,E : sel(E,I) }.

#minimize { E*I@1,E,I : sel(E,I) }.

#heuristic sel(E,I) : bottomsel(E,I). [1,true]

#show sel/2.
`

// WriteTo renders the encoding as clingo input: facts first, then the program.
// Constants other than the program defaults are passed on the command line.
func (e *Encoding) WriteTo(w io.Writer) (int64, error) {
	counter := &countingWriter{w: w}
	writer := bufio.NewWriter(counter)

	for _, r := range e.Facts.Roots {
		fmt.Fprintf(writer, "%s(%d).\n", RootPredicate, r.Class)
	}
	for _, n := range e.Facts.Enodes {
		fmt.Fprintf(writer, "%s(%d,%d,%s,%d).\n", EnodePredicate, n.Class, n.Index, Quote(n.Op), n.Cost)
	}
	for _, c := range e.Facts.Children {
		fmt.Fprintf(writer, "%s(%d,%d,%d).\n", ChildPredicate, c.Class, c.Index, c.ChildClass)
	}
	for _, b := range e.Facts.BottomSels {
		fmt.Fprintf(writer, "%s(%d,%d).\n", BottomSelPredicate, b.Class, b.Index)
	}
	writer.WriteString("\n")
	writer.WriteString(e.Program)

	err := writer.Flush()
	return counter.n, err
}

var quoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// Quote renders s as a clingo string term.
func Quote(s string) string {
	return `"` + quoter.Replace(s) + `"`
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
