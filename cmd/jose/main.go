package main

import (
	"os"

	"github.com/picatz/joseloader/internal/cmd"
)

func main() {
	if err := cmd.RootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
