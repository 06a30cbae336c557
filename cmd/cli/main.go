package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/limaJavier/extraction/pkg/config"
	"github.com/limaJavier/extraction/pkg/egraph"
	"github.com/limaJavier/extraction/pkg/extract"
	"github.com/limaJavier/extraction/pkg/metrics"
	"github.com/limaJavier/extraction/pkg/oracle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	exitSolved     = 10
	exitNoModel    = 20
	exitIllegal    = 15
	exitFailure    = 1
	configFileName = "config"
)

type options struct {
	file       string
	backend    string
	budget     float64
	configPath string
	out        string
	seed       bool
	logLevel   string
	metrics    string
}

type output struct {
	Choices   map[string]string `json:"choices"`
	Cost      float64           `json:"cost"`
	Objective []int64           `json:"objective"`
	Optimal   bool              `json:"optimal"`
	Models    int               `json:"models"`
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	code := exitFailure
	command := newCommand(stdout, stderr, &code)
	command.SetArgs(args)
	command.SetOut(stdout)
	command.SetErr(stderr)
	if err := command.Execute(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	return code
}

func newCommand(stdout, stderr io.Writer, code *int) *cobra.Command {
	opts := &options{}
	command := &cobra.Command{
		Use:           "extract",
		Short:         "Extract a minimum-cost term from a serialized e-graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			*code, err = run(cmd.Context(), cfg, opts, stdout, stderr)
			if err != nil {
				fmt.Fprintln(stderr, err)
			}
			return nil
		},
	}

	flags := command.Flags()
	flags.StringVar(&opts.file, "file", "", "Path to the serialized e-graph")
	flags.StringVar(&opts.backend, "backend", config.DefaultBackend, fmt.Sprintf("Optimization backend. Allowed values are: %v", strings.Join(oracle.Names, ", ")))
	flags.Float64Var(&opts.budget, "budget", config.DefaultTimeBudget, "Time budget in seconds; the best model found so far is returned once it elapses")
	flags.StringVar(&opts.configPath, "config", "", "Path to a JSON or YAML config file; defaults to config.json or config.yaml next to the executable")
	flags.StringVar(&opts.out, "out", "", "Path to the file where the output will be written; if empty, it'll be written into the Standard Output")
	flags.BoolVar(&opts.seed, "seed", false, "Bias the first model towards the greedy bottom-up extraction")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (trace, debug, info, warning, error)")
	flags.StringVar(&opts.metrics, "metrics", "", "Path to a file where the Prometheus metrics of the run are written")
	if err := command.MarkFlagRequired("file"); err != nil {
		panic(err)
	}
	return command
}

// loadConfig builds the configuration from the config file, then applies the
// flags the user set explicitly.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg := config.Default()
	configPath := opts.configPath
	if configPath == "" {
		configPath = defaultConfigPath()
	}
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = strings.ToLower(opts.backend)
	}
	if flags.Changed("budget") {
		cfg.TimeBudget = opts.budget
	}
	if flags.Changed("seed") {
		cfg.Seed = opts.seed
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}

	if !slices.Contains(oracle.Names, cfg.Backend) {
		return nil, fmt.Errorf("%v is not a valid backend", cfg.Backend)
	} else if cfg.TimeBudget < 0 {
		return nil, fmt.Errorf("budget must not be negative: %v", cfg.TimeBudget)
	}
	return cfg, nil
}

// defaultConfigPath looks for a config file next to the executable and
// returns "" when there is none.
func defaultConfigPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execPath = path.Dir(execPath)

	files, err := os.ReadDir(execPath)
	if err != nil {
		return ""
	}
	fileNames := lo.Map(files, func(file os.DirEntry, _ int) string { return file.Name() })
	for _, extension := range []string{".json", ".yaml", ".yml"} {
		if slices.Contains(fileNames, configFileName+extension) {
			return path.Join(execPath, configFileName+extension)
		}
	}
	return ""
}

func run(ctx context.Context, cfg *config.Config, opts *options, stdout, stderr io.Writer) (int, error) {
	logger := logrus.New()
	logger.SetOutput(stderr)
	if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return exitFailure, err
		}
		logger.SetLevel(level)
	}

	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return exitFailure, err
	}

	// Extract input
	graph, err := egraph.FromJson(opts.file)
	if err != nil {
		return exitFailure, fmt.Errorf("cannot parse input file: %w", err)
	}

	// Initialize engines
	backend, err := oracle.New(cfg.Backend, cfg, logger)
	if err != nil {
		return exitFailure, err
	}
	extractor := extract.NewAspExtractor(backend,
		extract.WithTimeBudget(cfg.Budget()),
		extract.WithTreeCostBound(cfg.TreeCostBound),
		extract.WithBottomUpSeed(cfg.Seed),
		extract.WithLogger(logger),
	)

	// Extract term
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	result, err := extractor.Extract(ctx, graph, nil)
	if opts.metrics != "" {
		if err := prometheus.WriteToTextfile(opts.metrics, registry); err != nil {
			logger.WithError(err).Warn("cannot write metrics")
		}
	}
	if errors.Is(err, extract.ErrNoModelFound) {
		fmt.Fprintln(stdout, "no valid extraction exists")
		return exitNoModel, nil
	} else if err != nil {
		return exitFailure, fmt.Errorf("an error occurred during extraction: %w", err)
	}
	logger.WithFields(logrus.Fields{"models": result.Models, "optimal": result.Optimal, "elapsed": time.Since(start)}).Info("extracted")

	// Verify selection correctness
	if !extract.Verify(graph, graph.Roots, result.Choices) {
		return exitIllegal, fmt.Errorf("extracted selection is not legal")
	}

	// Build output from selection
	choices := make(map[string]string)
	for class, index := range result.Choices {
		if index == extract.Unselected {
			continue
		}
		choices[graph.Classes[class].Name] = graph.Node(class, index).Name
	}
	outputJson, err := json.MarshalIndent(output{
		Choices:   choices,
		Cost:      result.Cost(graph),
		Objective: result.Objective,
		Optimal:   result.Optimal,
		Models:    result.Models,
	}, "", "  ")
	if err != nil {
		return exitFailure, fmt.Errorf("an error occurred while building output json: %w", err)
	}

	// Verify outfile is empty, if so then write the results to the Standard Output
	if opts.out == "" {
		fmt.Fprintln(stdout, string(outputJson))
	} else if err := os.WriteFile(opts.out, outputJson, 0666); err != nil {
		return exitFailure, fmt.Errorf("an error occurred while writing to the output file: %w", err)
	}
	return exitSolved, nil
}
