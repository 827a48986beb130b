package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/eak1mov/go-libsfd/sfd"
	"github.com/google/subcommands"
)

type infoCmd struct{}

func (c *infoCmd) Name() string     { return "info" }
func (c *infoCmd) Synopsis() string { return "print header and grid layout of sfd files" }
func (c *infoCmd) Usage() string {
	return "sfdtool info <path>+\n"
}
func (c *infoCmd) SetFlags(f *flag.FlagSet) {}

func (c *infoCmd) print(path string) error {
	reader, err := sfd.OpenFile(path)
	if err != nil {
		return err
	}
	defer reader.Close()
	h := reader.Header()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "file:\t%s\n", path)
	fmt.Fprintf(w, "name:\t%s\n", h.Name)
	fmt.Fprintf(w, "version:\t%d\n", h.Version)
	fmt.Fprintf(w, "size:\t%d\n", h.FileSize)
	fmt.Fprintf(w, "created:\t%s\n", time.Unix(int64(h.CreationTime), 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "debug params:\t%v\n", h.ReadDebugParams)
	fmt.Fprintf(w, "header strings:\t%d (max size %d, initial chars %q)\n", h.NbrStrings, h.MaxStringSize, h.InitialChars)
	fmt.Fprintf(w, "grid cells:\t%d\n", h.Cells())
	for i := range h.Collections {
		coll := &h.Collections[i]
		for layer, group := range coll.LayerGroups {
			fmt.Fprintf(w, "layer %d:\tgroup %d\n", layer, group)
		}
		for gi, g := range coll.Groups {
			for ni := range g.Notices {
				n := &g.Notices[ni]
				if n.Empty() {
					fmt.Fprintf(w, "group %d detail %d:\tempty\n", gi, g.StartDetail+ni)
					continue
				}
				fmt.Fprintf(w, "group %d detail %d:\tlat %d..%d lon %d..%d offset %d layers %v\n",
					gi, g.StartDetail+ni, n.StartLat, n.EndLat, n.StartLon, n.EndLon, n.Offset, n.Layers)
			}
		}
	}
	return w.Flush()
}

func (c *infoCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	for _, path := range f.Args() {
		if err := c.print(path); err != nil {
			return failure(err)
		}
	}
	return subcommands.ExitSuccess
}
