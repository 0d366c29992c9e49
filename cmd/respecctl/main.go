package main

import (
	"fmt"
	"os"

	"github.com/scbrown/respec/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "respecctl:", err)
		os.Exit(1)
	}
}
