package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/commonpurse/commonpurse/internal/cli"
)

func main() {
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		if !cli.Reported(err) {
			fmt.Fprintln(os.Stderr, err)
		}

		os.Exit(cli.GetExitCode(err))
	}
}
