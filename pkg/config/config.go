package config

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBackend       = "gini"
	DefaultTimeBudget    = 15.0
	DefaultTreeCostBound = 20
)

// Config is the runtime configuration of the extraction tools.
type Config struct {
	Backend       string            `mapstructure:"backend" validate:"required,oneof=clingo gini gophersat"`
	TimeBudget    float64           `mapstructure:"time_budget" validate:"gte=0"` // Seconds
	TreeCostBound int64             `mapstructure:"treecost_bound" validate:"gt=0,lte=2147483647"`
	Seed          bool              `mapstructure:"seed"`
	LogLevel      string            `mapstructure:"log_level" validate:"omitempty,oneof=trace debug info warning error"`
	Solvers       map[string]string `mapstructure:"solvers"` // Executable path per external solver
}

var validate = validator.New()

func Default() *Config {
	return &Config{
		Backend:       DefaultBackend,
		TimeBudget:    DefaultTimeBudget,
		TreeCostBound: DefaultTreeCostBound,
		LogLevel:      "info",
		Solvers:       map[string]string{},
	}
}

// Load reads a JSON or YAML configuration file, chosen by extension, on top of the defaults.
func Load(path string) (*Config, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}

	var input map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(bytes, &input)
	default:
		err = json.Unmarshal(bytes, &input)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file \"%v\": %w", path, err)
	}
	return Decode(input)
}

// Decode overlays input onto the defaults and validates the result.
func Decode(input map[string]any) (*Config, error) {
	config := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           config,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(input); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func (c *Config) Budget() time.Duration {
	return time.Duration(c.TimeBudget * float64(time.Second))
}

// Executable resolves the binary of an external solver, falling back to PATH
// when the configuration does not name one.
func (c *Config) Executable(solver string) (string, error) {
	if path, ok := c.Solvers[solver]; ok && path != "" {
		return path, nil
	}
	path, err := exec.LookPath(solver)
	if err != nil {
		return "", fmt.Errorf("solver \"%v\" is not configured and not on PATH: %w", solver, err)
	}
	return path, nil
}
