package main

import (
	"fmt"
	"os"

	"github.com/lcox74/bfcc/internal/core"
	"github.com/urfave/cli/v2"
)

var tokensCommand = &cli.Command{
	Name:      "tokens",
	Usage:     "dump the tokenizer's output",
	ArgsUsage: "<file>",
	Action: func(c *cli.Context) error {
		path, err := sourceArg(c)
		if err != nil {
			return err
		}

		src, err := os.ReadFile(path)
		if err != nil {
			return fail(2, "reading %s: %v", path, err)
		}

		for _, tok := range core.Tokenize(src) {
			fmt.Printf("%d:%d\t%v\n", tok.Pos.Line, tok.Pos.Column, tok.Kind)
		}
		return nil
	},
}
