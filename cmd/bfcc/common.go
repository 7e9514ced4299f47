package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lcox74/bfcc/internal/core"
	"github.com/urfave/cli/v2"
)

// exitError carries the exit code spec.md §6 assigns to each failure kind;
// cli.App's default ExitErrHandler reads ExitCode() and calls os.Exit
// itself, so commands never call os.Exit directly.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) ExitCode() int { return e.code }

func fail(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

// optLevelFlag and clirFlag are shared by the run, jit, build, obj and asm
// commands; dumpFlag only by jit, build and obj, per spec.md §6: "Each back-end accepts a single positional
// argument ... Flags recognised where applicable".
var optLevelFlag = &cli.IntFlag{
	Name:  "O",
	Value: 2,
	Usage: "optimization level (0, 1, or 2)",
}

var clirFlag = &cli.BoolFlag{
	Name:  "CLIR",
	Usage: "print the textual IR and exit with status 0",
}

var dumpFlag = &cli.StringFlag{
	Name:    "dump",
	Aliases: []string{"d"},
	Usage:   "write the raw machine code bytes to PATH and exit with status 0",
}

var tapeSizeFlag = &cli.IntFlag{
	Name:  "tape-size",
	Value: core.TapeSize,
	Usage: "tape length in bytes",
}

var eofFlag = &cli.StringFlag{
	Name:  "eof",
	Value: "zero",
	Usage: "end-of-file behavior on Input: zero, minus-one, or no-change",
}

// runOptions builds a core.Options from the run command's flags, mapping
// --eof's string form to core.EOFBehavior.
func runOptions(c *cli.Context) (core.Options, error) {
	var behavior core.EOFBehavior
	switch c.String("eof") {
	case "zero", "":
		behavior = core.EOFZero
	case "minus-one":
		behavior = core.EOFMinusOne
	case "no-change":
		behavior = core.EOFNoChange
	default:
		return core.Options{}, fmt.Errorf("invalid --eof value: %q (must be zero, minus-one, or no-change)", c.String("eof"))
	}

	level, err := parseOptLevel(c)
	if err != nil {
		return core.Options{}, err
	}

	return core.NewOptions(
		core.WithTapeSize(c.Int("tape-size")),
		core.WithOptLevel(level),
		core.WithEOFBehavior(behavior),
	), nil
}

func parseOptLevel(c *cli.Context) (core.OptLevel, error) {
	switch n := c.Int("O"); n {
	case 0:
		return core.O0, nil
	case 1:
		return core.O1, nil
	case 2:
		return core.O2, nil
	default:
		return core.O0, fmt.Errorf("invalid optimization level: %d (must be 0, 1, or 2)", n)
	}
}

// sourceArg returns the command's single positional source path, mapping a
// missing argument to exit code 1 per spec.md §6.
func sourceArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fail(1, "usage: bfcc %s [options] <file>", c.Command.Name)
	}
	return filepath.Clean(c.Args().First()), nil
}

// compile reads, tokenizes, lowers, optimises and verifies the named source
// file, mapping each failure to the exit code spec.md §6 assigns it: 2 for
// an unreadable source file, 3 for unbalanced brackets, 4 for an IR that
// fails structural verification.
func compile(path string, level core.OptLevel) ([]core.Op, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fail(2, "reading %s: %v", path, err)
	}

	tokens := core.Tokenize(src)
	ops, err := core.Lower(tokens)
	if err != nil {
		return nil, fail(3, "%v", err)
	}

	ops = core.OptimiseWithLevel(ops, level)
	if err := core.Verify(ops); err != nil {
		return nil, fail(4, "%v", err)
	}
	return ops, nil
}

// reportRuntimeError prints a runtime I/O error to standard error and
// returns nil so the process exits with status 0 — spec.md §6/§7's
// documented "exit code 0 after a runtime I/O error" behaviour, recorded as
// a deliberate decision in DESIGN.md rather than a silent quirk.
func reportRuntimeError(err error) error {
	if err == nil {
		return nil
	}
	fmt.Fprintln(os.Stderr, err)
	return nil
}

// emitIR prints the textual IR when --CLIR is set. Returns true if it
// handled the request (caller should return immediately, exit 0).
func emitIR(c *cli.Context, ops []core.Op) bool {
	if !c.Bool("CLIR") {
		return false
	}
	fmt.Print(core.Dump(ops))
	return true
}

// emitDump writes raw machine-code bytes to -d/--dump's path when set.
// Returns (handled, error); caller should return immediately on handled.
func emitDump(c *cli.Context, code []byte) (bool, error) {
	path := c.String("dump")
	if path == "" {
		return false, nil
	}
	if err := os.WriteFile(path, code, 0644); err != nil {
		return true, fail(2, "writing dump to %s: %v", path, err)
	}
	return true, nil
}
