package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/eak1mov/go-libsfd/index"
	"github.com/eak1mov/go-libsfd/sfd"
	"github.com/eak1mov/go-libsfd/sfd/spec"
	"github.com/eak1mov/go-libsfd/tile"
	"github.com/google/subcommands"
	"github.com/schollz/progressbar/v3"
)

type exportCmd struct {
	inputPath       string
	outputIndexPath string
	hilbert         bool
}

func (c *exportCmd) Name() string     { return "export_index" }
func (c *exportCmd) Synopsis() string { return "export grid cell index of sfd file" }
func (c *exportCmd) Usage() string {
	return "sfdtool export_index -i <path> -o <path> [-hilbert=false]\n"
}
func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input sfd file path")
	f.StringVar(&c.outputIndexPath, "o", "", "Output index file path")
	f.BoolVar(&c.hilbert, "hilbert", true, "Order cells along a Hilbert curve per detail level")
}

func (c *exportCmd) exportLocations(reader *sfd.Reader) error {
	bar := progressbar.NewOptions(reader.Header().Cells(), progressbar.OptionShowCount())
	indexItems := make([]index.Item, 0, reader.Header().Cells())
	err := reader.VisitLocations(func(cell spec.Cell, loc tile.Location) error {
		indexItems = append(indexItems, index.NewItem(cell, loc))
		bar.Add(1)
		return nil
	})
	bar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}

	if c.hilbert {
		index.SortHilbert(indexItems)
	}

	file, err := os.Create(c.outputIndexPath)
	if err != nil {
		return err
	}
	defer file.Close()
	writer := bufio.NewWriter(file)

	if err := index.WriteAll(indexItems, writer); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	return file.Close()
}

func (c *exportCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	reader, err := sfd.OpenFile(c.inputPath)
	if err != nil {
		return failure(err)
	}
	defer reader.Close()

	if err := c.exportLocations(reader); err != nil {
		return failure(err)
	}

	return subcommands.ExitSuccess
}
