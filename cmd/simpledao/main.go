package main

import (
	"os"

	"github.com/kaifufi/simpledao-client-go/cmd/simpledao/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
