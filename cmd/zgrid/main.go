package main

import (
	"os"

	"zgrid/cmd/zgrid/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
