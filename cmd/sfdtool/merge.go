package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"

	"github.com/eak1mov/go-libsfd/sfd"
	"github.com/google/subcommands"
	"github.com/schollz/progressbar/v3"
)

type mergeCmd struct {
	version int
	test    bool
	name    string
}

func (c *mergeCmd) Name() string { return "merge" }
func (c *mergeCmd) Synopsis() string {
	return "merge sfd files into one, the result must form a square"
}
func (c *mergeCmd) Usage() string {
	return "sfdtool merge [-w <version>] [-t] [-n <name>] <out> <in>+\n"
}
func (c *mergeCmd) SetFlags(f *flag.FlagSet) {
	for _, n := range []string{"w", "wfd-version"} {
		f.IntVar(&c.version, n, 0, "Version of the saved file (0 is supported by all readers)")
	}
	for _, n := range []string{"t", "test"} {
		f.BoolVar(&c.test, n, false, "Only load the input files, write no output")
	}
	for _, n := range []string{"n", "name"} {
		f.StringVar(&c.name, n, "", "Name of the merged file, like 22_6_3")
	}
}

// parseInterleaved parses flags that follow positional arguments and returns
// the positional arguments. Everything after "--" is positional.
func parseInterleaved(f *flag.FlagSet) ([]string, error) {
	var positional []string
	args := f.Args()
	for len(args) > 0 {
		if args[0] == "--" {
			return append(positional, args[1:]...), nil
		}
		if err := f.Parse(args); err != nil {
			return nil, err
		}
		rest := f.Args()
		if n := len(args) - len(rest); n > 0 && args[n-1] == "--" {
			return append(positional, rest...), nil
		}
		if len(rest) == 0 {
			break
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
	return positional, nil
}

func (c *mergeCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	args, err := parseInterleaved(f)
	if err != nil {
		log.Println(err)
		return subcommands.ExitUsageError
	}
	if len(args) < 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if c.version < 0 || c.version > 255 {
		log.Printf("invalid version: %d", c.version)
		return subcommands.ExitUsageError
	}
	outPath, inPaths := args[0], args[1:]

	bar := progressbar.NewOptions(len(inPaths), progressbar.OptionSetDescription("loading"), progressbar.OptionShowCount())
	files := make([]*sfd.File, 0, len(inPaths))
	for _, inPath := range inPaths {
		file, err := sfd.LoadFile(inPath, sfd.WithLogger(slog.Default()))
		if err != nil {
			bar.Exit()
			fmt.Println()
			return failure(fmt.Errorf("%s: %w", inPath, err))
		}
		files = append(files, file)
		bar.Add(1)
	}
	bar.Finish()
	fmt.Println()

	out, err := sfd.MergeFiles(c.name, files...)
	if err != nil {
		return failure(err)
	}
	if c.test {
		return subcommands.ExitSuccess
	}

	if err := out.WriteFile(outPath, uint8(c.version)); err != nil {
		return failure(err)
	}
	log.Printf("saved merged sfd %s", outPath)

	return subcommands.ExitSuccess
}
