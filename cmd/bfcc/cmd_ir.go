package main

import (
	"fmt"

	"github.com/lcox74/bfcc/internal/core"
	"github.com/urfave/cli/v2"
)

var irCommand = &cli.Command{
	Name:      "ir",
	Usage:     "dump the textual IR after tokenizing, lowering and optimising",
	ArgsUsage: "<file>",
	Flags:     []cli.Flag{&cli.IntFlag{Name: "O", Value: 0, Usage: "optimization level (0, 1, or 2)"}},
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
		fmt.Print(core.Dump(ops))
		return nil
	},
}
