package main

import (
	"os"
	"strings"

	"github.com/lcox74/bfcc/internal/codegen/gas"
	"github.com/urfave/cli/v2"
)

var asmCommand = &cli.Command{
	Name:      "asm",
	Usage:     "emit GAS/AT&T textual assembly for inspection",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		optLevelFlag, clirFlag,
		&cli.StringFlag{Name: "o", Usage: "output assembly path (default: input file with .s extension)"},
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

		asm := gas.NewGenerator(ops).Generate()

		outPath := c.String("o")
		if outPath == "" {
			outPath = strings.TrimSuffix(path, ".bf") + ".s"
		}
		if err := os.WriteFile(outPath, []byte(asm), 0644); err != nil {
			return fail(2, "writing %s: %v", outPath, err)
		}
		return nil
	},
}
