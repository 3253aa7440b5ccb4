package main

import (
	"os"

	"github.com/X3n0m0rph59/precached/cmd/precached/cli"
)

func main() {
	os.Exit(cli.Execute())
}
