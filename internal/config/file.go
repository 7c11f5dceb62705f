package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/retroenv/regtrack/internal/engine"
	"gopkg.in/yaml.v3"
)

// MaxDepthEnv overrides the default search depth.
const MaxDepthEnv = "REGTRACK_MAX_DEPTH"

var errInvalidQuery = errors.New("invalid query")

// Config is the optional YAML configuration of a run.
type Config struct {
	Engine   Engine  `yaml:"engine"`
	ReadOnly []Range `yaml:"readonly"`
	Entries  []Entry `yaml:"entries"`
	Queries  []Query `yaml:"queries"`
}

// Engine contains the register tracker limits.
type Engine struct {
	MaxDepth     int `yaml:"max_depth"`
	FuncMaxDepth int `yaml:"func_max_depth"`
	MaxChains    int `yaml:"max_chains"`
	MaxValues    int `yaml:"max_values"`
}

// Range is an inclusive address range.
type Range struct {
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
}

// Entry is an additional code entry point.
type Entry struct {
	Address uint64 `yaml:"address"`
	Name    string `yaml:"name"`
}

// Query asks for the value of a register before an address.
type Query struct {
	Address  uint64 `yaml:"address"`
	Register string `yaml:"register"`
}

// Default returns the configuration that is used without a config file.
func Default() (Config, error) {
	opts := engine.DefaultOptions()
	cfg := Config{
		Engine: Engine{
			MaxDepth:     opts.MaxDepth,
			FuncMaxDepth: opts.FuncMaxDepth,
			MaxChains:    opts.MaxChains,
			MaxValues:    opts.MaxValues,
		},
	}

	if s := os.Getenv(MaxDepthEnv); s != "" {
		depth, err := strconv.Atoi(s)
		if err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", MaxDepthEnv, err)
		}
		cfg.Engine.MaxDepth = depth
	}
	return cfg, nil
}

// Load reads the config file and applies the defaults for all values that
// are not set. An empty path returns the default configuration.
func Load(path string) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return Config{}, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the config for values that can not be used.
func (c Config) Validate() error {
	e := c.Engine
	switch {
	case e.MaxDepth < 1:
		return fmt.Errorf("max_depth %d is invalid", e.MaxDepth)
	case e.FuncMaxDepth < 1:
		return fmt.Errorf("func_max_depth %d is invalid", e.FuncMaxDepth)
	case e.MaxChains < 1:
		return fmt.Errorf("max_chains %d is invalid", e.MaxChains)
	case e.MaxValues < 1:
		return fmt.Errorf("max_values %d is invalid", e.MaxValues)
	}

	for _, r := range c.ReadOnly {
		if r.End < r.Start {
			return fmt.Errorf("readonly range %#x-%#x ends before it starts", r.Start, r.End)
		}
	}
	for _, q := range c.Queries {
		if q.Register == "" {
			return fmt.Errorf("query at %#x has no register", q.Address)
		}
	}
	return nil
}

// EngineOptions returns the register tracker options.
func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		MaxDepth:     c.Engine.MaxDepth,
		FuncMaxDepth: c.Engine.FuncMaxDepth,
		MaxChains:    c.Engine.MaxChains,
		MaxValues:    c.Engine.MaxValues,
	}
}

// ParseQuery parses a query of the form address:register, for example
// 0x210:v0.
func ParseQuery(s string) (Query, error) {
	addr, reg, ok := strings.Cut(s, ":")
	if !ok || reg == "" {
		return Query{}, fmt.Errorf("%w '%s', expected address:register", errInvalidQuery, s)
	}
	address, err := strconv.ParseUint(addr, 0, 64)
	if err != nil {
		return Query{}, fmt.Errorf("%w '%s': %w", errInvalidQuery, s, err)
	}
	return Query{Address: address, Register: reg}, nil
}
