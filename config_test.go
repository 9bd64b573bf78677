package pathgen_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/pathgen"
	"github.com/stretchr/testify/require"
)

func writeFile(tb testing.TB, name, data string) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	require.NoError(tb, os.WriteFile(path, []byte(data), 0o666))
	return path
}

func TestNewConfig(t *testing.T) {
	c := pathgen.NewConfig()
	require.NoError(t, c.Validate())
	require.Equal(t, pathgen.ModeBucket, c.Mode)
	require.Equal(t, pathgen.DefaultIterationBudget, c.IterationBudget)
	require.Equal(t, pathgen.DefaultTimeout, time.Duration(c.Timeout))
	require.EqualValues(t, pathgen.DefaultModerateRange, c.Buckets.ModerateRange)
	require.False(t, c.AssertPanics)
}

func TestReadConfigFile(t *testing.T) {
	t.Run("YAML", func(t *testing.T) {
		c, err := pathgen.ReadConfigFile(writeFile(t, "pathgen.yaml", `
iteration_budget: 500
mode: mixed
seed: 9
timeout: 250ms
assert_panics: true
buckets:
  moderate_range: 4
  reuse_chance: 0.5
`))
		require.NoError(t, err)
		require.Equal(t, 500, c.IterationBudget)
		require.Equal(t, pathgen.ModeMixed, c.Mode)
		require.Equal(t, int64(9), c.Seed)
		require.Equal(t, 250*time.Millisecond, time.Duration(c.Timeout))
		require.True(t, c.AssertPanics)
		require.Equal(t, int64(4), c.Buckets.ModerateRange)
		require.Equal(t, 0.5, c.Buckets.ReuseChance)

		// Unset fields keep their defaults.
		require.Equal(t, 1, c.Workers)
	})

	t.Run("TOML", func(t *testing.T) {
		c, err := pathgen.ReadConfigFile(writeFile(t, "pathgen.toml", `
iteration_budget = 64
mode = "random"
timeout = "1s"
only_new_paths = true

[buckets]
reuse_chance = 0.0
`))
		require.NoError(t, err)
		require.Equal(t, 64, c.IterationBudget)
		require.Equal(t, pathgen.ModeRandom, c.Mode)
		require.Equal(t, time.Second, time.Duration(c.Timeout))
		require.True(t, c.OnlyNewPaths)
		require.Equal(t, 0.0, c.Buckets.ReuseChance)
	})

	t.Run("ErrInvalidMode", func(t *testing.T) {
		_, err := pathgen.ReadConfigFile(writeFile(t, "pathgen.yml", "mode: symbolic\n"))
		require.ErrorIs(t, err, pathgen.ErrInvalidMode)
	})

	t.Run("InvalidDuration", func(t *testing.T) {
		_, err := pathgen.ReadConfigFile(writeFile(t, "pathgen.yaml", "timeout: soon\n"))
		require.Error(t, err)
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		_, err := pathgen.ReadConfigFile(writeFile(t, "pathgen.json", "{}"))
		require.ErrorContains(t, err, "unsupported config file format")
	})

	t.Run("NotExist", func(t *testing.T) {
		_, err := pathgen.ReadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestConfig_Validate(t *testing.T) {
	c := pathgen.NewConfig()
	c.IterationBudget = 0
	require.Error(t, c.Validate())

	c = pathgen.NewConfig()
	c.Buckets.ReuseChance = 1.5
	require.Error(t, c.Validate())

	c = pathgen.NewConfig()
	c.Workers = -1
	require.Error(t, c.Validate())

	c = pathgen.NewConfig()
	c.Buckets.ModerateRange = 0
	require.ErrorContains(t, c.Validate(), "moderate range must be positive")
}

func TestConfig_NewGenerator(t *testing.T) {
	for mode, want := range map[string]any{
		pathgen.ModeBucket: &pathgen.BucketGenerator{},
		pathgen.ModeRandom: &pathgen.RandomGenerator{},
		pathgen.ModeMixed:  &pathgen.MultiGenerator{},
	} {
		c := pathgen.NewConfig()
		c.Mode = mode
		g, err := c.NewGenerator()
		require.NoError(t, err)
		require.IsType(t, want, g, mode)
	}

	c := pathgen.NewConfig()
	c.Mode = "nope"
	_, err := c.NewGenerator()
	require.ErrorIs(t, err, pathgen.ErrInvalidMode)
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d pathgen.Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	require.Equal(t, 90*time.Second, time.Duration(d))
	require.Equal(t, "1m30s", d.String())
}
