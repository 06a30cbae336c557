package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/limaJavier/extraction/pkg/config"
	"github.com/limaJavier/extraction/pkg/egraph"
	"github.com/limaJavier/extraction/pkg/extract"
	"github.com/limaJavier/extraction/pkg/oracle"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	defaultTestDirectory = "../../test/egraphs/"
	defaultOutFile       = "benchmark_results.csv"
	bottomUp             = "bottomup"
)

type ResultType int

const (
	solved ResultType = iota
	timeout
	noModel
	failed
)

var resultTypes = map[ResultType]string{
	solved:  "solved",
	timeout: "timeout",
	noModel: "no_model",
	failed:  "failed",
}

type TestMetadata struct {
	Name    string
	Graph   *egraph.EGraph
	Classes int
	Nodes   int
}

type BenchmarkResult struct {
	Extractor string
	Test      TestMetadata
	Cost      float64
	Models    int
	Optimal   bool
	Duration  int64 // Milliseconds
	Result    ResultType
}

func main() {
	var (
		directory string
		outFile   string
		budget    float64
		names     []string
	)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	command := &cobra.Command{
		Use:   "benchmark",
		Short: "Run every extractor over a directory of serialized e-graphs and write the results as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if invalid := lo.Without(names, append(slices.Clone(oracle.Names), bottomUp)...); len(invalid) > 0 {
				return fmt.Errorf("unknown extractors: %v", invalid)
			}
			cfg := config.Default()
			cfg.TimeBudget = budget

			tests, err := getTests(directory)
			if err != nil {
				return err
			}
			extractors, err := getExtractors(names, cfg, logger)
			if err != nil {
				return err
			}

			file, err := os.Create(outFile)
			if err != nil {
				return fmt.Errorf("cannot create CSV file: %w", err)
			}
			defer file.Close()
			return toCsv(file, benchmark(cmd.Context(), logger, tests, names, extractors))
		},
	}
	flags := command.Flags()
	flags.StringVar(&directory, "dir", defaultTestDirectory, "Directory holding the serialized e-graphs")
	flags.StringVar(&outFile, "out", defaultOutFile, "Path of the CSV file to write")
	flags.Float64Var(&budget, "budget", config.DefaultTimeBudget, "Time budget in seconds per extraction")
	flags.StringSliceVar(&names, "extractors", append(slices.Clone(oracle.Names), bottomUp), "Extractors to benchmark")

	if err := command.Execute(); err != nil {
		logger.Fatal(err)
	}
}

func getTests(directory string) ([]TestMetadata, error) {
	testFiles, err := os.ReadDir(directory)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory: %w", err)
	}

	tests := make([]TestMetadata, 0, len(testFiles))
	for _, file := range testFiles {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		filename := filepath.Join(directory, file.Name())
		graph, err := egraph.FromJson(filename)
		if err != nil {
			return nil, fmt.Errorf("cannot parse input file \"%v\": %w", filename, err)
		}
		tests = append(tests, TestMetadata{
			Name:    filename,
			Graph:   graph,
			Classes: graph.NumClasses(),
			Nodes:   graph.NumNodes(),
		})
	}
	return tests, nil
}

// getExtractors builds one extractor per name. External backends whose
// binary cannot be found are skipped with a warning.
func getExtractors(names []string, cfg *config.Config, logger logrus.FieldLogger) (map[string]extract.Extractor, error) {
	extractors := make(map[string]extract.Extractor, len(names))
	for _, name := range names {
		if name == bottomUp {
			extractors[name] = extract.NewBottomUpExtractor()
			continue
		}
		backend, err := oracle.New(name, cfg, logger)
		if err != nil {
			logger.WithError(err).Warnf("skipping extractor \"%v\"", name)
			continue
		}
		extractors[name] = extract.NewAspExtractor(backend, extract.WithTimeBudget(cfg.Budget()), extract.WithLogger(logger))
	}
	if len(extractors) == 0 {
		return nil, errors.New("no extractor is available")
	}
	return extractors, nil
}

func benchmark(ctx context.Context, logger logrus.FieldLogger, tests []TestMetadata, names []string, extractors map[string]extract.Extractor) []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(tests)*len(extractors))
	for _, test := range tests {
		for _, name := range names {
			extractor, ok := extractors[name]
			if !ok {
				continue
			}
			fmt.Printf("Benchmarking test \"%v\" with extractor \"%v\"\n", test.Name, name)
			results = append(results, measure(ctx, logger, test, name, extractor))
		}
	}
	return results
}

func measure(ctx context.Context, logger logrus.FieldLogger, test TestMetadata, name string, extractor extract.Extractor) BenchmarkResult {
	if ctx == nil {
		ctx = context.Background()
	}
	benchmarkResult := BenchmarkResult{Extractor: name, Test: test}

	start := time.Now()
	result, err := extractor.Extract(ctx, test.Graph, nil)
	benchmarkResult.Duration = time.Since(start).Milliseconds()

	switch {
	case errors.Is(err, extract.ErrNoModelFound):
		benchmarkResult.Result = noModel
	case err != nil:
		logger.WithError(err).WithFields(logrus.Fields{"extractor": name, "test": test.Name}).Error("extraction failed")
		benchmarkResult.Result = failed
	default:
		benchmarkResult.Cost = result.Cost(test.Graph)
		benchmarkResult.Models = result.Models
		benchmarkResult.Optimal = result.Optimal
		benchmarkResult.Result = solved
		if name != bottomUp && !result.Optimal {
			benchmarkResult.Result = timeout
		}
	}
	return benchmarkResult
}

func toCsv(out io.Writer, results []BenchmarkResult) error {
	writer := csv.NewWriter(out)

	header := []string{"Test", "Extractor", "Classes", "Nodes", "Cost", "Models", "Optimal", "Duration(ms)", "Result"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("cannot write CSV header: %w", err)
	}

	for _, result := range results {
		record := []string{
			result.Test.Name,
			result.Extractor,
			fmt.Sprintf("%d", result.Test.Classes),
			fmt.Sprintf("%d", result.Test.Nodes),
			fmt.Sprintf("%g", result.Cost),
			fmt.Sprintf("%d", result.Models),
			fmt.Sprintf("%v", result.Optimal),
			fmt.Sprintf("%d", result.Duration),
			resultTypes[result.Result],
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("cannot write CSV record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
