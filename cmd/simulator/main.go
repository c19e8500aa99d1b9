package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

var configPath = flag.String("config", "./configs", "Directory containing config.yml")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&runCmd{}, "trading")
	commander.Register(&priceCmd{}, "market")
	commander.Register(&historyCmd{}, "account")
	commander.Register(&accountCmd{}, "account")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
