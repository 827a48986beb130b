package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/eak1mov/go-libsfd/sfd"
	"github.com/eak1mov/go-libsfd/tile"
	"github.com/google/subcommands"
	"github.com/schollz/progressbar/v3"
)

type buildCmd struct {
	inputFormat string
	inputPath   string
	outputPath  string
	name        string
	debug       bool
	gzip        bool
	swedish     bool
	batch       int
	maxPending  int
}

func (c *buildCmd) Name() string     { return "build" }
func (c *buildCmd) Synopsis() string { return "build sfd file from a buffer store" }
func (c *buildCmd) Usage() string {
	return "sfdtool build -i <path> -o <path> [-if <format> -n <name> -debug -batch <n>]\n"
}
func (c *buildCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input store path (sqlite file or directory pattern with {key})")
	f.StringVar(&c.inputFormat, "if", "", "Input store format (sqlite, dir)")
	f.StringVar(&c.outputPath, "o", "", "Output file path")
	f.StringVar(&c.name, "n", "", "Name stored in the file header")
	f.BoolVar(&c.debug, "debug", false, "Store tile params with every block")
	f.BoolVar(&c.gzip, "gzip", true, "Request gzipped tiles")
	f.BoolVar(&c.swedish, "swedish", false, "Request Swedish strings instead of English")
	f.IntVar(&c.batch, "batch", 256, "Number of buffers fetched per round")
	f.IntVar(&c.maxPending, "max-pending", sfd.DefaultMaxPending, "Maximum number of tile pairs in flight")
}

func (c *buildCmd) collectKeys(reader tile.KeyVisitor) ([]string, error) {
	var keys []string
	err := reader.VisitKeys(func(key string) error {
		keys = append(keys, key)
		return nil
	})
	return keys, err
}

func (c *buildCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.inputPath == "" || c.outputPath == "" {
		log.Println("input and output paths are required")
		return subcommands.ExitUsageError
	}

	reader, err := openStore(c.inputFormat, c.inputPath)
	if err != nil {
		return failure(err)
	}
	defer reader.Close()

	keys, err := c.collectKeys(reader)
	if err != nil {
		return failure(err)
	}

	lang := tile.LangEnglish
	if c.swedish {
		lang = tile.LangSwedish
	}
	builder, err := sfd.NewBuilderFromKeys(keys,
		sfd.WithBuilderLogger(slog.Default()),
		sfd.WithTempDir(filepath.Dir(c.outputPath)),
		sfd.WithName(c.name),
		sfd.WithDebugParams(c.debug),
		sfd.WithParams(0, c.gzip, lang),
		sfd.WithMaxPending(c.maxPending))
	if err != nil {
		return failure(err)
	}
	defer builder.Close()

	bar := progressbar.NewOptions(len(keys), progressbar.OptionShowIts(), progressbar.OptionShowCount())
	err = sfd.Build(ctx, builder, reader, c.batch, func(n int) { bar.Add(n) })
	bar.Finish()
	fmt.Println()
	if err != nil {
		return failure(err)
	}

	res, err := builder.Result()
	if err != nil {
		return failure(err)
	}
	log.Printf("built %d bytes, build %s", len(res.Bytes()), builder.ID())
	if err := res.Close(); err != nil {
		return failure(err)
	}

	if err := os.Rename(res.Path(), c.outputPath); err != nil {
		os.Remove(res.Path())
		return failure(err)
	}

	return subcommands.ExitSuccess
}
