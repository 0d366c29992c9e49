package main

import (
	"os"

	"github.com/scbrown/respec/internal/cli"
)

func main() {
	os.Exit(cli.ExecuteRespec())
}
