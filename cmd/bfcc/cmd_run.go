package main

import (
	"github.com/lcox74/bfcc/internal/vm"
	"github.com/urfave/cli/v2"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "interpret a source file with the tree-walking VM",
	ArgsUsage: "<file>",
	Flags:     []cli.Flag{optLevelFlag, clirFlag, tapeSizeFlag, eofFlag},
	Action: func(c *cli.Context) error {
		path, err := sourceArg(c)
		if err != nil {
			return err
		}
		opts, err := runOptions(c)
		if err != nil {
			return fail(1, "%v", err)
		}

		ops, err := compile(path, opts.OptLevel)
		if err != nil {
			return err
		}
		if emitIR(c, ops) {
			return nil
		}

		interpreter := vm.NewVM(
			vm.WithMemorySize(opts.TapeSize),
			vm.WithEOFBehavior(vm.EOFBehavior(opts.EOFBehavior)),
		)
		return reportRuntimeError(interpreter.Run(ops))
	},
}
