//go:build linux && amd64

package main

import (
	"github.com/lcox74/bfcc/internal/codegen/jit"
	"github.com/lcox74/bfcc/internal/core"
	"github.com/urfave/cli/v2"
)

var jitCommand = &cli.Command{
	Name:      "jit",
	Usage:     "JIT-compile a source file to machine code and execute it immediately",
	ArgsUsage: "<file>",
	Flags:     []cli.Flag{optLevelFlag, clirFlag, dumpFlag},
	Action: func(c *cli.Context) error {
		path, err := sourceArg(c)
		if err != nil {
			return err
		}
		level, err := parseOptLevel(c)
		if err != nil {
			return fail(1, "%v", err)
		}

		ops, err := compile(path, level)
		if err != nil {
			return err
		}
		if emitIR(c, ops) {
			return nil
		}

		code := jit.NewGenerator(ops).Generate()
		if handled, err := emitDump(c, code); handled {
			return err
		}

		prog, err := jit.Materialize(code)
		if err != nil {
			return fail(4, "%v", err)
		}
		defer prog.Release()

		tape := make([]byte, core.TapeSize)
		return reportRuntimeError(prog.Run(tape))
	},
}
