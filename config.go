package pathgen

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/pathgen/cfg"
	"github.com/benbjohnson/pathgen/vm"
	"github.com/cockroachdb/errors"
	"github.com/naoina/toml"
	"gopkg.in/yaml.v3"
)

// Generator modes.
const (
	ModeBucket = "bucket"
	ModeRandom = "random"
	ModeMixed  = "mixed"
)

// Default configuration values.
const (
	DefaultMode    = ModeBucket
	DefaultTimeout = 2 * time.Second
)

// Config holds the settings for a search.
type Config struct {
	IterationBudget int      `yaml:"iteration_budget" toml:"iteration_budget"`
	Mode            string   `yaml:"mode" toml:"mode"`
	Seed            int64    `yaml:"seed" toml:"seed"`
	Timeout         Duration `yaml:"timeout" toml:"timeout"`

	VisitBudget int `yaml:"visit_budget" toml:"visit_budget"`
	MaxSteps    int `yaml:"max_steps" toml:"max_steps"`
	MaxDepth    int `yaml:"max_depth" toml:"max_depth"`

	AssertPanics   bool `yaml:"assert_panics" toml:"assert_panics"`
	AbortOnTimeout bool `yaml:"abort_on_timeout" toml:"abort_on_timeout"`
	OnlyNewPaths   bool `yaml:"only_new_paths" toml:"only_new_paths"`

	// Number of invocation workers per search.
	Workers int `yaml:"workers" toml:"workers"`

	Buckets BucketConfig `yaml:"buckets" toml:"buckets"`
}

// BucketConfig holds the settings for the bucket generator.
type BucketConfig struct {
	ModerateRange int64   `yaml:"moderate_range" toml:"moderate_range"`
	ReuseChance   float64 `yaml:"reuse_chance" toml:"reuse_chance"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() Config {
	return Config{
		IterationBudget: DefaultIterationBudget,
		Mode:            DefaultMode,
		Seed:            1,
		Timeout:         Duration(DefaultTimeout),
		VisitBudget:     cfg.DefaultVisitBudget,
		MaxSteps:        vm.DefaultMaxSteps,
		MaxDepth:        vm.DefaultMaxDepth,
		Workers:         1,
		Buckets: BucketConfig{
			ModerateRange: DefaultModerateRange,
			ReuseChance:   DefaultReuseChance,
		},
	}
}

// ReadConfigFile reads the YAML or TOML file at path over the defaults. The
// format is chosen by the file extension.
func ReadConfigFile(path string) (Config, error) {
	c := NewConfig()
	buf, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(buf, &c)
	case ".toml":
		err = toml.Unmarshal(buf, &c)
	default:
		return c, errors.Newf("unsupported config file format: %q", ext)
	}
	if err != nil {
		return c, errors.Wrapf(err, "parse %s", path)
	}
	return c, c.Validate()
}

// Validate returns an error if the configuration cannot be used.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeBucket, ModeRandom, ModeMixed:
	default:
		return errors.Wrapf(ErrInvalidMode, "%q", c.Mode)
	}
	if c.IterationBudget <= 0 {
		return errors.Newf("iteration budget must be positive: %d", c.IterationBudget)
	} else if c.Workers < 0 {
		return errors.Newf("workers must not be negative: %d", c.Workers)
	} else if c.Buckets.ModerateRange < 1 {
		return errors.Newf("moderate range must be positive: %d", c.Buckets.ModerateRange)
	} else if c.Buckets.ReuseChance < 0 || c.Buckets.ReuseChance > 1 {
		return errors.Newf("reuse chance must be between 0 and 1: %v", c.Buckets.ReuseChance)
	}
	return nil
}

// NewGenerator returns the argument generator for the configured mode.
func (c *Config) NewGenerator() (Generator, error) {
	newBucket := func() Generator {
		g := NewBucketGenerator(rand.New(rand.NewSource(c.Seed)))
		g.ModerateRange = c.Buckets.ModerateRange
		g.ReuseChance = c.Buckets.ReuseChance
		return g
	}

	switch c.Mode {
	case ModeBucket:
		return newBucket(), nil
	case ModeRandom:
		return NewRandomGenerator(c.Seed), nil
	case ModeMixed:
		return NewMultiGenerator(newBucket(), NewRandomGenerator(c.Seed)), nil
	default:
		return nil, errors.Wrapf(ErrInvalidMode, "%q", c.Mode)
	}
}

// Searcher bundles the components needed to search many functions with one
// configuration. Each call to NewDriver returns an independent driver.
type Searcher struct {
	config   Config
	analyzer *Analyzer

	// Shared by every driver so IDs stay unique across one output file.
	ids *testIDs
}

// NewSearcher returns a new instance of Searcher.
func NewSearcher(c Config) (*Searcher, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	analyzer, err := NewAnalyzer(DefaultAnalysisCacheSize)
	if err != nil {
		return nil, err
	}
	analyzer.VisitBudget = c.VisitBudget
	return &Searcher{
		config:   c,
		analyzer: analyzer,
		ids:      newTestIDs(rand.New(rand.NewSource(c.Seed))),
	}, nil
}

// Analyzer returns the shared analysis cache.
func (s *Searcher) Analyzer() *Analyzer { return s.analyzer }

// NewDriver returns a driver with its own runner and generator. Test IDs are
// drawn from a source shared by all of the searcher's drivers. The caller
// must close the returned runner.
func (s *Searcher) NewDriver() (*Driver, *Runner, error) {
	c := s.config
	gen, err := c.NewGenerator()
	if err != nil {
		return nil, nil, err
	}

	tracer := NewTracer()
	tracer.MaxSteps, tracer.MaxDepth = c.MaxSteps, c.MaxDepth

	runner, err := NewRunner(tracer, c.Workers, time.Duration(c.Timeout))
	if err != nil {
		return nil, nil, err
	}

	d := NewDriver(runner, gen, nil)
	d.ids = s.ids
	d.IterationBudget = c.IterationBudget
	d.AssertPanics = c.AssertPanics
	d.AbortOnTimeout = c.AbortOnTimeout
	d.OnlyNewPaths = c.OnlyNewPaths
	return d, runner, nil
}

// Duration is a time.Duration read from a string such as "500ms".
type Duration time.Duration

// String returns the duration string.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText encodes d as a duration string.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", text)
	}
	*d = Duration(v)
	return nil
}
