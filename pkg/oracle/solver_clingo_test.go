package oracle

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/limaJavier/extraction/pkg/asp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClingo writes a shell script standing in for the clingo binary.
func fakeClingo(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "clingo")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func openClingo(t *testing.T, executable string) Session {
	t.Helper()
	enc := &asp.Encoding{Facts: asp.NewFactBase(), Program: asp.Program, Constants: map[string]int64{asp.TreeCostBoundConstant: 20}}
	enc.Facts.AddRoot(asp.Root{Class: 0})
	enc.Facts.AddEnode(asp.Enode{Class: 0, Index: 0, Op: "x", Cost: 1})

	grounded, err := NewClingoBackend(executable, logrus.StandardLogger()).Ground(context.Background(), enc)
	require.NoError(t, err)
	session, err := grounded.Solve(context.Background())
	require.NoError(t, err)
	return session
}

func TestClingoSessionStreamsModels(t *testing.T) {
	//** Arrange
	executable := fakeClingo(t, `cat <<'OUT'
clingo version 5.7.1
Reading from extraction.lp
Solving...
Answer: 1
sel(0,0)
Optimization: 10 -1 1 0
Answer: 2
sel(0,1) sel(1,0)
Optimization: 1 -2 2 0
OPTIMUM FOUND
OUT
exit 30
`)
	session := openClingo(t, executable)
	defer session.Close()
	ctx := context.Background()

	//** Act
	first, err1 := session.Next(ctx)
	second, err2 := session.Next(ctx)
	third, err3 := session.Next(ctx)

	//** Assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.NoError(t, err3)
	assert.Equal(t, &Model{Number: 1, Symbols: []Symbol{sel(0, 0)}, Costs: []int64{10, -1, 1, 0}}, first)
	assert.Equal(t, &Model{Number: 2, Symbols: []Symbol{sel(0, 1), sel(1, 0)}, Costs: []int64{1, -2, 2, 0}}, second)
	assert.Nil(t, third)
}

func TestClingoSessionPassesArguments(t *testing.T) {
	executable := fakeClingo(t, `echo "Answer: 1"
echo "$2 $3 $4"
echo "Optimization: 0"
exit 30
`)
	session := openClingo(t, executable)
	defer session.Close()

	model, err := session.Next(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []Symbol{{Name: "--opt-mode=opt"}, {Name: "-c"}, {Name: "treecost_bound=20"}}, model.Symbols)
}

func TestClingoSessionUnsatisfiable(t *testing.T) {
	executable := fakeClingo(t, "echo UNSATISFIABLE\nexit 20\n")
	session := openClingo(t, executable)
	defer session.Close()

	model, err := session.Next(context.Background())

	assert.NoError(t, err)
	assert.Nil(t, model)
}

func TestClingoSessionErrors(t *testing.T) {
	type tc struct {
		Name     string
		Script   string
		Expected error
	}

	for _, tt := range []tc{
		{Name: "parse error", Script: "echo '<block>:1:3-4: error: syntax error' >&2\necho '*** ERROR: (clingo): parsing failed' >&2\nexit 65\n", Expected: ErrGrounding},
		{Name: "crash", Script: "echo 'out of memory' >&2\nexit 33\n", Expected: ErrSolve},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			session := openClingo(t, fakeClingo(t, tt.Script))
			defer session.Close()

			_, err := session.Next(context.Background())

			assert.ErrorIs(t, err, tt.Expected)
		})
	}
}

func TestClingoSessionCloseKillsSolver(t *testing.T) {
	//** Arrange
	executable := fakeClingo(t, `echo "Answer: 1"
echo "sel(0,0)"
echo "Optimization: 1 -1 1 0"
exec sleep 30
`)
	session := openClingo(t, executable)
	model, err := session.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, model)

	//** Act
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, waitErr := session.Next(ctx)
	start := time.Now()
	closeErr := session.Close()

	//** Assert
	assert.ErrorIs(t, waitErr, context.DeadlineExceeded)
	assert.NoError(t, closeErr)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestClingoMissingBinary(t *testing.T) {
	enc := &asp.Encoding{Facts: asp.NewFactBase(), Program: asp.Program}
	grounded, err := NewClingoBackend(filepath.Join(t.TempDir(), "absent"), logrus.StandardLogger()).Ground(context.Background(), enc)
	require.NoError(t, err)

	_, err = grounded.Solve(context.Background())

	assert.ErrorIs(t, err, ErrSolve)
}

func TestParseSymbol(t *testing.T) {
	assert.Equal(t, sel(3, 12), parseSymbol("sel(3,12)"))
	assert.Equal(t, Symbol{Name: "flag"}, parseSymbol("flag"))
	assert.Equal(t, Symbol{Name: `sel("a",1)`}, parseSymbol(`sel("a",1)`))
	assert.Equal(t, []int64{4, -2, 0}, parseCosts(" 4 -2 0"))
}
