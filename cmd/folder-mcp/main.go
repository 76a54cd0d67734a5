package main

import (
	"fmt"
	"os"

	"foldermcp/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitGenericError)
	}
}
