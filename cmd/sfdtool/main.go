package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&mergeCmd{}, "")
	subcommands.Register(&buildCmd{}, "")
	subcommands.Register(&unpackCmd{}, "")
	subcommands.Register(&infoCmd{}, "")
	subcommands.Register(&exportCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
