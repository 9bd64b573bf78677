package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/benbjohnson/pathgen/compile"
	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	verboseFlag = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Enable verbose logging",
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log-file",
		Usage: "Write logs to a rotating file instead of stderr",
	}
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	app := NewApp(stdout)
	return app.RunContext(ctx, append([]string{app.Name}, args...))
}

// NewApp returns the pathgen command line application.
func NewApp(stdout io.Writer) *cli.App {
	return &cli.App{
		Name:  "pathgen",
		Usage: "generate regression tests that cover every path of a function",
		Flags: []cli.Flag{verboseFlag, logFileFlag},
		Commands: []*cli.Command{
			NewGenerateCommand(stdout),
			NewPathsCommand(stdout),
			NewDisasmCommand(stdout),
		},
		Writer:          stdout,
		Before:          setupLogging,
		HideHelpCommand: true,
	}
}

// setupLogging routes the standard logger. Logs are discarded unless
// verbose logging or a log file is requested.
func setupLogging(ctx *cli.Context) error {
	log.SetFlags(0)
	switch {
	case ctx.IsSet(logFileFlag.Name):
		log.SetFlags(log.LstdFlags)
		log.SetOutput(&lumberjack.Logger{
			Filename:   ctx.String(logFileFlag.Name),
			MaxSize:    16, // megabytes
			MaxBackups: 3,
		})
	case ctx.Bool(verboseFlag.Name):
		log.SetOutput(os.Stderr)
	default:
		log.SetOutput(io.Discard)
	}
	return nil
}

// loadModule loads and compiles the single package matching pattern. A
// directory is loaded from within itself so it may belong to another module.
func loadModule(pattern string) (*compile.Module, error) {
	dir := ""
	if fi, err := os.Stat(pattern); err == nil && fi.IsDir() {
		dir, pattern = pattern, "."
	}

	pkgs, err := compile.Load(dir, pattern)
	if err != nil {
		return nil, err
	} else if len(pkgs) != 1 {
		return nil, errors.Newf("expected one package, found %d", len(pkgs))
	}

	return compile.Compile(pkgs[0])
}

// loadFunc loads the package matching pattern and returns the named function.
func loadFunc(ctx *cli.Context) (*compile.Func, error) {
	if ctx.NArg() != 2 {
		return nil, errors.New("package and function required")
	}

	m, err := loadModule(ctx.Args().Get(0))
	if err != nil {
		return nil, err
	}
	name := ctx.Args().Get(1)
	if fn := m.Func(name); fn != nil {
		return fn, nil
	} else if err := m.Skipped[name]; err != nil {
		return nil, err
	}
	return nil, errors.Newf("function not found: %s", name)
}
