// Command ledgerctl holds the operator tooling around the ledger listener:
// minting service tokens, hashing the API token, encrypting exchange secrets
// and checking a topology file.
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
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range commands {
		commander.Register(c, "")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

var commands = []subcommands.Command{
	&tokenCmd{},
	&hashCmd{},
	&encryptCmd{},
	&topologyCmd{},
}
