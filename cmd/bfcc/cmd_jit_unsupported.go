//go:build !(linux && amd64)

package main

import "github.com/urfave/cli/v2"

var jitCommand = &cli.Command{
	Name:      "jit",
	Usage:     "JIT-compile a source file to machine code and execute it immediately (linux/amd64 only)",
	ArgsUsage: "<file>",
	Action: func(c *cli.Context) error {
		return fail(4, "jit: unsupported on this platform (requires linux/amd64)")
	},
}
