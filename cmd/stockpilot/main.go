// stockpilot manages a small experimental equity portfolio on Alpaca: daily
// pricing updates, position reconciliation, trailing-stop management and the
// supporting order operations.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))

	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	commander.Register(&updateCmd{}, "portfolio")
	commander.Register(&syncCmd{}, "portfolio")
	commander.Register(&ordersCmd{}, "orders")
	commander.Register(&liquidateCmd{}, "orders")
	commander.Register(&reportCmd{}, "reporting")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
