package main

import (
	"os"
	"strings"

	"github.com/lcox74/bfcc/internal/codegen/linux"
	"github.com/lcox74/bfcc/internal/xlog"
	"github.com/urfave/cli/v2"
)

var buildCommand = &cli.Command{
	Name:      "build",
	Usage:     "emit a standalone static ELF64 Linux executable",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		optLevelFlag, clirFlag, dumpFlag,
		&cli.StringFlag{Name: "x", Usage: "output executable path (default: input file without extension)"},
	},
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

		if handled, err := emitDump(c, linux.NewX86_64Generator(ops).Generate()); handled {
			return err
		}
		binary := linux.NewX86_64Generator(ops).GenerateELF()

		outPath := c.String("x")
		if outPath == "" {
			outPath = strings.TrimSuffix(path, ".bf")
		}
		if err := os.WriteFile(outPath, binary, 0755); err != nil {
			return fail(2, "writing %s: %v", outPath, err)
		}
		xlog.Info("build: wrote executable", "path", outPath, "bytes", len(binary))
		return nil
	},
}
