package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"regexp"

	"github.com/benbjohnson/pathgen"
	"github.com/benbjohnson/pathgen/compile"
	"github.com/benbjohnson/pathgen/emit"
	"github.com/cockroachdb/errors"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Read settings from a YAML or TOML file",
	}
	modeFlag = &cli.StringFlag{
		Name:  "mode",
		Usage: "Argument generator: bucket, random or mixed",
	}
	budgetFlag = &cli.IntFlag{
		Name:  "budget",
		Usage: "Maximum invocations per function",
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Maximum duration of a single invocation",
	}
	seedFlag = &cli.Int64Flag{
		Name:  "seed",
		Usage: "Random seed",
	}
	outFlag = &cli.StringFlag{
		Name:    "out",
		Aliases: []string{"o"},
		Usage:   "Output directory (default: the package directory)",
	}
	runFlag = &cli.StringFlag{
		Name:  "run",
		Usage: "Only search functions matching the regular expression",
	}
	jobsFlag = &cli.IntFlag{
		Name:    "jobs",
		Aliases: []string{"j"},
		Usage:   "Number of functions searched concurrently",
		Value:   4,
	}
	assertPanicsFlag = &cli.BoolFlag{
		Name:  "assert-panics",
		Usage: "Generate tests for invocations that panic",
	}
)

// NewGenerateCommand returns the "generate" subcommand.
func NewGenerateCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Generate regression tests for a package",
		ArgsUsage: "<package>",
		Flags: []cli.Flag{
			configFlag, modeFlag, budgetFlag, timeoutFlag, seedFlag,
			outFlag, runFlag, jobsFlag, assertPanicsFlag,
		},
		Action: func(ctx *cli.Context) error {
			return generate(ctx, stdout)
		},
	}
}

func generate(ctx *cli.Context, stdout io.Writer) error {
	if ctx.NArg() == 0 {
		return errors.New("package required")
	} else if ctx.NArg() > 1 {
		return errors.New("too many packages specified")
	}

	c, err := readConfig(ctx)
	if err != nil {
		return err
	}

	var re *regexp.Regexp
	if s := ctx.String(runFlag.Name); s != "" {
		if re, err = regexp.Compile(s); err != nil {
			return errors.Wrap(err, "invalid -run expression")
		}
	}

	m, err := loadModule(ctx.Args().First())
	if err != nil {
		return err
	}

	// Find searchable functions.
	var fns []*compile.Func
	for _, fn := range m.Funcs() {
		if re != nil && !re.MatchString(fn.Name) {
			continue
		} else if !fn.Searchable() {
			log.Printf("[compile] skip %s: unsupported signature", fn)
			continue
		}
		fns = append(fns, fn)
	}

	results, err := search(ctx, c, fns)
	if err != nil {
		return err
	}

	var assertions []*pathgen.GeneratedAssertion
	for _, result := range results {
		assertions = append(assertions, result.Assertions...)
	}
	if len(assertions) == 0 {
		fmt.Fprintln(stdout, "no tests generated")
		return nil
	}

	dir := ctx.String(outFlag.Name)
	if dir == "" {
		dir = m.Dir
	}
	path, err := emit.WriteFile(dir, emit.NewFile(m.Name, assertions))
	if err != nil {
		return err
	}

	colored := stdout == io.Writer(os.Stdout) && isatty.IsTerminal(os.Stdout.Fd())
	if err := WriteReport(stdout, results, colored); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %d test(s) to %s\n", len(assertions), path)
	return nil
}

// readConfig returns the configuration file settings overridden by flags.
func readConfig(ctx *cli.Context) (pathgen.Config, error) {
	c := pathgen.NewConfig()
	if path := ctx.String(configFlag.Name); path != "" {
		var err error
		if c, err = pathgen.ReadConfigFile(path); err != nil {
			return c, err
		}
	}

	if ctx.IsSet(modeFlag.Name) {
		c.Mode = ctx.String(modeFlag.Name)
	}
	if ctx.IsSet(budgetFlag.Name) {
		c.IterationBudget = ctx.Int(budgetFlag.Name)
	}
	if ctx.IsSet(timeoutFlag.Name) {
		c.Timeout = pathgen.Duration(ctx.Duration(timeoutFlag.Name))
	}
	if ctx.IsSet(seedFlag.Name) {
		c.Seed = ctx.Int64(seedFlag.Name)
	}
	if ctx.IsSet(assertPanicsFlag.Name) {
		c.AssertPanics = ctx.Bool(assertPanicsFlag.Name)
	}
	return c, c.Validate()
}

// search runs one driver per function, up to -jobs at a time. Results are
// returned in the order of fns.
func search(ctx *cli.Context, c pathgen.Config, fns []*compile.Func) ([]*pathgen.Result, error) {
	searcher, err := pathgen.NewSearcher(c)
	if err != nil {
		return nil, err
	}

	results := make([]*pathgen.Result, len(fns))
	g, gctx := errgroup.WithContext(ctx.Context)
	if n := ctx.Int(jobsFlag.Name); n > 0 {
		g.SetLimit(n)
	}
	for i, fn := range fns {
		i, fn := i, fn
		g.Go(func() error {
			analysis, err := searcher.Analyzer().Analyze(fn)
			if err != nil {
				return err
			}

			d, runner, err := searcher.NewDriver()
			if err != nil {
				return err
			}
			defer runner.Close()

			result, err := d.Search(gctx, fn, analysis)
			if err != nil {
				return errors.Wrapf(err, "search %s", fn.Name)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
