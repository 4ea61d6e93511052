package main

import (
	"context"
	"os"

	"github.com/banksync/banksync/internal/commands"
)

func main() {
	err := commands.NewRootCommand().ExecuteContext(context.Background())
	os.Exit(commands.ExitCode(err))
}
