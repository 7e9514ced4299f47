package main

import (
	"os"
	"strings"

	"github.com/lcox74/bfcc/internal/codegen/coff"
	"github.com/lcox74/bfcc/internal/codegen/object"
	"github.com/urfave/cli/v2"
)

var objCommand = &cli.Command{
	Name:      "obj",
	Usage:     "emit a relocatable object file (bf_write/bf_read/bf_exit left as external symbols)",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		optLevelFlag, clirFlag, dumpFlag,
		&cli.StringFlag{Name: "o", Usage: "output object path (default: input file with .o/.obj extension)"},
		&cli.BoolFlag{Name: "coff", Usage: "emit a Windows COFF object instead of an ELF64 object"},
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

		code, _ := object.NewGenerator(ops).Generate()
		if handled, err := emitDump(c, code); handled {
			return err
		}

		var out []byte
		ext := ".o"
		if c.Bool("coff") {
			out = coff.BuildObject(ops)
			ext = ".obj"
		} else {
			out = object.BuildObject(ops)
		}

		outPath := c.String("o")
		if outPath == "" {
			outPath = strings.TrimSuffix(path, ".bf") + ext
		}
		if err := os.WriteFile(outPath, out, 0644); err != nil {
			return fail(2, "writing %s: %v", outPath, err)
		}
		return nil
	},
}
