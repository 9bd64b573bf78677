package main

import (
	"io"

	"github.com/benbjohnson/pathgen/bytecode"
	"github.com/davecgh/go-spew/spew"
	"github.com/urfave/cli/v2"
)

var dumpFlag = &cli.BoolFlag{
	Name:  "dump",
	Usage: "Also dump the raw code object",
}

// NewDisasmCommand returns the "disasm" subcommand.
func NewDisasmCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "disasm",
		Usage:     "Print the decoded instructions of a function",
		ArgsUsage: "<package> <function>",
		Flags:     []cli.Flag{dumpFlag},
		Action: func(ctx *cli.Context) error {
			fn, err := loadFunc(ctx)
			if err != nil {
				return err
			}

			if err := bytecode.WriteListing(stdout, fn.Function.Code); err != nil {
				return err
			}
			if ctx.Bool(dumpFlag.Name) {
				spew.Fdump(stdout, fn.Function.Code)
			}
			return nil
		},
	}
}
