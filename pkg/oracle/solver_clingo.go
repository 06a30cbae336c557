package oracle

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/limaJavier/extraction/pkg/asp"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const clingoName = "clingo"

type clingoBackend struct {
	executable string
	logger     logrus.FieldLogger
}

// NewClingoBackend drives an external clingo binary, streaming the improving
// models it prints while optimising.
func NewClingoBackend(executable string, logger logrus.FieldLogger) Backend {
	return &clingoBackend{executable: executable, logger: logger.WithField("backend", clingoName)}
}

func (b *clingoBackend) Name() string {
	return clingoName
}

func (b *clingoBackend) Ground(ctx context.Context, enc *asp.Encoding) (Grounded, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGrounding, err)
	}

	var program bytes.Buffer
	if _, err := enc.WriteTo(&program); err != nil {
		return nil, fmt.Errorf("%w: cannot render encoding: %w", ErrGrounding, err)
	}

	args := []string{"--opt-mode=opt"}
	names := lo.Keys(enc.Constants)
	slices.Sort(names)
	for _, name := range names {
		args = append(args, "-c", fmt.Sprintf("%s=%d", name, enc.Constants[name]))
	}
	if len(enc.Facts.BottomSels) > 0 {
		args = append(args, "--heuristic=Domain")
	}
	return &clingoGrounded{backend: b, program: program.Bytes(), args: args}, nil
}

type clingoGrounded struct {
	backend *clingoBackend
	program []byte
	args    []string
}

func (cg *clingoGrounded) Solve(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSolve, err)
	}

	file, err := os.CreateTemp("", "extraction-*.lp")
	if err != nil {
		return nil, fmt.Errorf("%w: cannot create program file: %w", ErrSolve, err)
	}
	path := file.Name()
	_, err = file.Write(cg.program)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: cannot write program file: %w", ErrSolve, err)
	}

	cmd := exec.Command(cg.backend.executable, append([]string{path}, cg.args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: %w", ErrSolve, err)
	}
	if err := cmd.Start(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: cannot start clingo: %w", ErrSolve, err)
	}
	cg.backend.logger.WithField("args", cmd.Args).Debug("clingo started")

	session := &clingoSession{
		cmd:      cmd,
		path:     path,
		stderr:   &stderr,
		models:   make(chan *Model),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		logger:   cg.backend.logger,
	}
	go session.read(stdout)
	return session, nil
}

type clingoSession struct {
	cmd    *exec.Cmd
	path   string
	stderr *bytes.Buffer
	logger logrus.FieldLogger

	models   chan *Model
	done     chan struct{}
	finished chan struct{}
	err      error // Set by read before finished is closed

	closeOnce sync.Once
}

func (s *clingoSession) Next(ctx context.Context) (*Model, error) {
	select {
	case model, ok := <-s.models:
		if ok {
			return model, nil
		}
		<-s.finished
		return nil, s.err
	case <-s.done:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *clingoSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		<-s.finished
		os.Remove(s.path)
	})
	return nil
}

// read parses clingo's answer blocks and hands complete models to Next.
func (s *clingoSession) read(stdout io.Reader) {
	defer close(s.finished)
	defer close(s.models)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var pending *Model
	atoms := false
	emit := func() bool {
		if pending == nil {
			return true
		}
		model := pending
		pending = nil
		select {
		case s.models <- model:
			return true
		case <-s.done:
			return false
		}
	}

	stopped := false
	for !stopped && scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case atoms:
			atoms = false
			pending.Symbols = parseSymbols(line)
		case strings.HasPrefix(line, "Answer:"):
			if !emit() {
				stopped = true
				break
			}
			number, _ := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Answer:")))
			pending = &Model{Number: number}
			atoms = true
		case strings.HasPrefix(line, "Optimization:") && pending != nil:
			pending.Costs = parseCosts(strings.TrimPrefix(line, "Optimization:"))
			stopped = !emit()
		}
	}
	if !stopped {
		emit()
	}
	io.Copy(io.Discard, stdout)

	err := s.cmd.Wait()
	select {
	case <-s.done:
		return
	default:
	}
	s.err = classify(err, s.stderr.String())
}

// classify maps the exit of clingo to the failure kinds of a backend.
// Exit codes 10, 20 and 30 report satisfiable, unsatisfiable and optimum found.
func classify(err error, stderr string) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case 10, 20, 30:
			return nil
		}
	}
	if strings.Contains(stderr, "parsing failed") || strings.Contains(stderr, "grounding stopped") || strings.Contains(stderr, "error: ") {
		return fmt.Errorf("%w: %v: %v", ErrGrounding, err, strings.TrimSpace(stderr))
	}
	return fmt.Errorf("%w: clingo failed: %v: %v", ErrSolve, err, strings.TrimSpace(stderr))
}

func parseSymbols(line string) []Symbol {
	fields := strings.Fields(line)
	symbols := make([]Symbol, 0, len(fields))
	for _, field := range fields {
		symbols = append(symbols, parseSymbol(field))
	}
	return symbols
}

// parseSymbol reads name(a,b,...) with integer arguments. Anything else is kept
// whole as the name, which no decoder accepts as sel/2.
func parseSymbol(text string) Symbol {
	open := strings.IndexByte(text, '(')
	if open < 0 {
		return Symbol{Name: text}
	}
	if !strings.HasSuffix(text, ")") {
		return Symbol{Name: text}
	}
	var args []int64
	for _, arg := range strings.Split(text[open+1:len(text)-1], ",") {
		value, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return Symbol{Name: text}
		}
		args = append(args, value)
	}
	return Symbol{Name: text[:open], Args: args}
}

func parseCosts(text string) []int64 {
	var costs []int64
	for _, field := range strings.Fields(text) {
		if value, err := strconv.ParseInt(field, 10, 64); err == nil {
			costs = append(costs, value)
		}
	}
	return costs
}
