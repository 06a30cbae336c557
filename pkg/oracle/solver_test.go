package oracle

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/limaJavier/extraction/pkg/asp"
	"github.com/limaJavier/extraction/pkg/config"
	"github.com/limaJavier/extraction/pkg/egraph"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDirectory = "../../test/egraphs/"

type scenario struct {
	Name    string
	Graph   func(t *testing.T) *egraph.EGraph
	Symbols []Symbol // Of the optimal model, nil when unsatisfiable
	Costs   []int64
}

func sel(class, index int64) Symbol {
	return Symbol{Name: asp.SelPredicate, Args: []int64{class, index}}
}

func fromFile(name string) func(t *testing.T) *egraph.EGraph {
	return func(t *testing.T) *egraph.EGraph {
		graph, err := egraph.FromJson(testDirectory + name)
		require.NoError(t, err)
		return graph
	}
}

func fromBuilder(build func(b *egraph.Builder)) func(t *testing.T) *egraph.EGraph {
	return func(t *testing.T) *egraph.EGraph {
		builder := egraph.NewBuilder()
		build(builder)
		graph, err := builder.Build()
		require.NoError(t, err)
		return graph
	}
}

var scenarios = []scenario{
	{
		Name:    "unreachable class",
		Graph:   fromFile("unreachable.json"),
		Symbols: []Symbol{sel(0, 0)},
		Costs:   []int64{5, -1, 1, 0},
	},
	{
		Name: "cheap node with a free child",
		Graph: fromBuilder(func(b *egraph.Builder) {
			c0 := b.AddClass("c0")
			c1 := b.AddClass("c1")
			b.AddNode(c0, "a", 10)
			b.AddNode(c0, "b", 1, c1)
			b.AddNode(c1, "leaf", 0)
			b.AddRoot(c0)
		}),
		Symbols: []Symbol{sel(0, 1), sel(1, 0)},
		Costs:   []int64{1, -2, 2, 0},
	},
	{
		Name:    "shared subterms",
		Graph:   fromFile("shared.json"),
		Symbols: []Symbol{sel(1, 0), sel(2, 0), sel(3, 1), sel(4, 0)},
		Costs:   []int64{5, -4, 4, 3},
	},
	{
		Name:    "cycle with an exit",
		Graph:   fromFile("cycle.json"),
		Symbols: []Symbol{sel(0, 0), sel(1, 1)},
		Costs:   []int64{4, -2, 2, 1},
	},
	{
		Name: "cycle without an exit",
		Graph: fromBuilder(func(b *egraph.Builder) {
			c0 := b.AddClass("c0")
			c1 := b.AddClass("c1")
			b.AddNode(c0, "f", 1, c1)
			b.AddNode(c1, "g", 1, c0)
			b.AddRoot(c0)
		}),
	},
}

// drain collects every model of a fresh session on g.
func drain(t *testing.T, backend Backend, graph *egraph.EGraph, options ...asp.Option) []*Model {
	t.Helper()
	ctx := context.Background()
	enc, err := asp.Encode(graph, graph.Roots, options...)
	require.NoError(t, err)
	grounded, err := backend.Ground(ctx, enc)
	require.NoError(t, err)
	session, err := grounded.Solve(ctx)
	require.NoError(t, err)
	defer session.Close()

	var models []*Model
	for {
		model, err := session.Next(ctx)
		require.NoError(t, err)
		if model == nil {
			return models
		}
		models = append(models, model)
	}
}

func assertImproving(t *testing.T, models []*Model) {
	t.Helper()
	for i := 1; i < len(models); i++ {
		assert.Negative(t, Compare(models[i].Costs, models[i-1].Costs), "model %d does not improve on %d", i+1, i)
		assert.Equal(t, i+1, models[i].Number)
	}
}

func testBackend(t *testing.T, backend Backend) {
	for _, tt := range scenarios {
		t.Run(tt.Name, func(t *testing.T) {
			//** Arrange
			graph := tt.Graph(t)

			//** Act
			models := drain(t, backend, graph)

			//** Assert
			if tt.Symbols == nil {
				assert.Empty(t, models)
				return
			}
			require.NotEmpty(t, models)
			last := models[len(models)-1]
			assert.ElementsMatch(t, tt.Symbols, last.Symbols)
			assert.Equal(t, tt.Costs, last.Costs)
			assertImproving(t, models)
		})
	}
}

func TestGiniBackend(t *testing.T) {
	testBackend(t, NewGiniBackend(logrus.StandardLogger()))
}

func TestGophersatBackend(t *testing.T) {
	testBackend(t, NewGophersatBackend(logrus.StandardLogger()))
}

func TestClingoBackend(t *testing.T) {
	executable, err := exec.LookPath("clingo")
	if err != nil {
		t.Skip("clingo is not on PATH")
	}
	testBackend(t, NewClingoBackend(executable, logrus.StandardLogger()))
}

func TestGiniBackendSeed(t *testing.T) {
	//** Arrange
	graph := fromFile("shared.json")(t)
	backend := NewGiniBackend(logrus.StandardLogger())

	//** Act
	// root.shl with x and lit1, legal but not optimal
	seeded := drain(t, backend, graph, asp.WithSeed([]int{0, -1, 1, -1, 0}))
	// a partial seed the solver has to complete
	broken := drain(t, backend, graph, asp.WithSeed([]int{-1, -1, 1, -1, -1}))

	//** Assert
	for _, models := range [][]*Model{seeded, broken} {
		require.NotEmpty(t, models)
		assert.Equal(t, []int64{5, -4, 4, 3}, models[len(models)-1].Costs)
		assertImproving(t, models)
	}
}

func TestInProcessSessionCancelled(t *testing.T) {
	graph := fromFile("shared.json")(t)

	for _, backend := range []Backend{NewGiniBackend(logrus.StandardLogger()), NewGophersatBackend(logrus.StandardLogger())} {
		t.Run(backend.Name(), func(t *testing.T) {
			//** Arrange
			enc, err := asp.Encode(graph, graph.Roots)
			require.NoError(t, err)
			grounded, err := backend.Ground(context.Background(), enc)
			require.NoError(t, err)
			session, err := grounded.Solve(context.Background())
			require.NoError(t, err)
			defer session.Close()

			//** Act
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			model, err := session.Next(ctx)

			//** Assert
			assert.ErrorIs(t, err, context.Canceled)
			assert.Nil(t, model)
		})
	}
}

func TestGiniGroundedSolvesOnce(t *testing.T) {
	graph := fromFile("unreachable.json")(t)
	enc, err := asp.Encode(graph, graph.Roots)
	require.NoError(t, err)
	grounded, err := NewGiniBackend(logrus.StandardLogger()).Ground(context.Background(), enc)
	require.NoError(t, err)

	session, err := grounded.Solve(context.Background())
	require.NoError(t, err)
	defer session.Close()
	_, err = grounded.Solve(context.Background())

	assert.ErrorIs(t, err, ErrSolve)
}

func TestGroundForeignProgram(t *testing.T) {
	enc := &asp.Encoding{Facts: asp.NewFactBase(), Program: "a."}

	for _, backend := range []Backend{NewGiniBackend(logrus.StandardLogger()), NewGophersatBackend(logrus.StandardLogger())} {
		_, err := backend.Ground(context.Background(), enc)
		assert.ErrorIs(t, err, ErrGrounding, backend.Name())
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	graph := fromFile("unreachable.json")(t)
	enc, err := asp.Encode(graph, graph.Roots)
	require.NoError(t, err)
	grounded, err := NewGophersatBackend(logrus.StandardLogger()).Ground(context.Background(), enc)
	require.NoError(t, err)
	session, err := grounded.Solve(context.Background())
	require.NoError(t, err)

	assert.NoError(t, session.Close())
	assert.NoError(t, session.Close())
	model, err := session.Next(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, model)
}

func TestNew(t *testing.T) {
	cfg := config.Default()
	cfg.Solvers["clingo"] = "/opt/clingo/bin/clingo"

	for _, name := range Names {
		backend, err := New(name, cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, name, backend.Name())
	}
	_, err := New("cplex", cfg, nil)
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	assert.Equal(t, 0, Compare([]int64{1, 2}, []int64{1, 2}))
	assert.Negative(t, Compare([]int64{1, 9}, []int64{2, 0}))
	assert.Positive(t, Compare([]int64{1, -1}, []int64{1, -2}))
}

func TestInProcessBackendsAgree(t *testing.T) {
	graph := fromFile("shared.json")(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var finals [][]int64
	for _, backend := range []Backend{NewGiniBackend(logrus.StandardLogger()), NewGophersatBackend(logrus.StandardLogger())} {
		enc, err := asp.Encode(graph, graph.Roots)
		require.NoError(t, err)
		grounded, err := backend.Ground(ctx, enc)
		require.NoError(t, err)
		session, err := grounded.Solve(ctx)
		require.NoError(t, err)
		var last *Model
		for {
			model, err := session.Next(ctx)
			require.NoError(t, err)
			if model == nil {
				break
			}
			last = model
		}
		require.NoError(t, session.Close())
		require.NotNil(t, last)
		finals = append(finals, last.Costs)
	}
	assert.Equal(t, finals[0], finals[1])
}

func TestInProcessSessionsImproveAndExhaust(t *testing.T) {
	// c0 -> {a: 10, b: 1 + c1}; c1 -> {leaf: 0}
	graph := scenarios[1].Graph(t)

	for _, backend := range []Backend{NewGiniBackend(logrus.StandardLogger()), NewGophersatBackend(logrus.StandardLogger())} {
		t.Run(backend.Name(), func(t *testing.T) {
			//** Arrange
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			enc, err := asp.Encode(graph, graph.Roots)
			require.NoError(t, err)
			grounded, err := backend.Ground(ctx, enc)
			require.NoError(t, err)
			session, err := grounded.Solve(ctx)
			require.NoError(t, err)
			defer session.Close()

			//** Act
			var models []*Model
			exhausted := false
			for range 20 {
				model, err := session.Next(ctx)
				require.NoError(t, err)
				if model == nil {
					exhausted = true
					break
				}
				models = append(models, model)
			}

			//** Assert
			require.True(t, exhausted, "session kept yielding models: %v", lo.Map(models, func(m *Model, _ int) []int64 { return m.Costs }))
			require.NotEmpty(t, models)
			assertImproving(t, models)
			assert.Equal(t, []int64{1, -2, 2, 0}, models[len(models)-1].Costs)
		})
	}
}

func TestGophersatEngineBounds(t *testing.T) {
	//** Arrange
	graph := scenarios[1].Graph(t)
	enc, err := asp.Encode(graph, graph.Roots)
	require.NoError(t, err)
	grounded, err := NewGophersatBackend(logrus.StandardLogger()).Ground(context.Background(), enc)
	require.NoError(t, err)
	gg := grounded.(*gophersatGrounded)
	ctx := context.Background()

	//** Act
	e := &gophersatEngine{grounded: gg}
	cheap, err1 := e.solve(ctx, &bound{level: 0, k: 1})
	picked := e.value(gg.ground.Sel[0][1])
	e.fix(0, 1)
	free, err2 := e.solve(ctx, &bound{level: 0, k: 0})

	//** Assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.True(t, cheap)
	assert.True(t, picked)
	assert.False(t, free)
}

func TestGophersatEngineCancelled(t *testing.T) {
	//** Arrange
	graph := scenarios[1].Graph(t)
	enc, err := asp.Encode(graph, graph.Roots)
	require.NoError(t, err)
	grounded, err := NewGophersatBackend(logrus.StandardLogger()).Ground(context.Background(), enc)
	require.NoError(t, err)
	e := &gophersatEngine{grounded: grounded.(*gophersatGrounded)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	//** Act
	ok, err := e.solve(ctx, nil)

	//** Assert
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
	assert.Nil(t, e.model)
}
