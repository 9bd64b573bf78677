package main

import (
	"fmt"
	"io"

	"github.com/benbjohnson/pathgen"
	"github.com/urfave/cli/v2"
)

var dotFlag = &cli.BoolFlag{
	Name:  "dot",
	Usage: "Print the control-flow graph in DOT format",
}

// NewPathsCommand returns the "paths" subcommand.
func NewPathsCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "paths",
		Usage:     "Print the enumerated paths of a function",
		ArgsUsage: "<package> <function>",
		Flags:     []cli.Flag{dotFlag},
		Action: func(ctx *cli.Context) error {
			fn, err := loadFunc(ctx)
			if err != nil {
				return err
			}

			analyzer, err := pathgen.NewAnalyzer(1)
			if err != nil {
				return err
			}
			analysis, err := analyzer.Analyze(fn)
			if err != nil {
				return err
			}

			if ctx.Bool(dotFlag.Name) {
				return analysis.Graph.WriteDOT(stdout, fn.String())
			}

			paths := analysis.Paths()
			for _, p := range paths.Paths() {
				fmt.Fprintf(stdout, "%s (exit n%d)\n", p, p.Exit)
				for _, step := range p.Steps {
					fmt.Fprintf(stdout, "\t%s\n", step)
				}
			}
			if analysis.Incomplete {
				fmt.Fprintln(stdout, "enumeration incomplete: visit budget exhausted")
			}
			fmt.Fprintf(stdout, "%d path(s)\n", paths.Len())
			return nil
		},
	}
}
