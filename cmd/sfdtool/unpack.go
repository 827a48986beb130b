package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/eak1mov/go-libsfd/sfd"
	"github.com/eak1mov/go-libsfd/tile"
	"github.com/google/subcommands"
	"github.com/schollz/progressbar/v3"
)

type unpackCmd struct {
	inputPath    string
	outputFormat string
	outputPath   string
	gzip         bool
}

func (c *unpackCmd) Name() string     { return "unpack" }
func (c *unpackCmd) Synopsis() string { return "write every buffer of an sfd file to a buffer store" }
func (c *unpackCmd) Usage() string {
	return "sfdtool unpack -i <path> -o <path> [-of <format>]\n"
}
func (c *unpackCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input sfd file path")
	f.StringVar(&c.outputPath, "o", "", "Output store path (sqlite file or directory pattern with {key})")
	f.StringVar(&c.outputFormat, "of", "", "Output store format (sqlite, dir)")
	f.BoolVar(&c.gzip, "gzip", true, "Tiles in the file are gzipped")
}

func (c *unpackCmd) unpack(reader tile.Visitor, writer tile.Writer) error {
	bar := progressbar.NewOptions(-1, progressbar.OptionShowIts(), progressbar.OptionShowCount())
	err := reader.VisitBuffers(func(key string, data []byte) error {
		bar.Add(1)
		return writer.WriteBuffer(key, data)
	})
	bar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}

	return writer.Finalize()
}

func (c *unpackCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	reader, err := sfd.OpenFile(c.inputPath, sfd.WithGzip(c.gzip))
	if err != nil {
		return failure(err)
	}
	defer reader.Close()

	writer, err := createStore(c.outputFormat, c.outputPath)
	if err != nil {
		return failure(err)
	}

	err = c.unpack(reader, writer)
	if err := errors.Join(err, writer.Close()); err != nil {
		return failure(err)
	}
	log.Printf("unpacked %s", c.inputPath)

	return subcommands.ExitSuccess
}
