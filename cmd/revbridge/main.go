package main

import (
	"os"

	"github.com/dshills/revbridge/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
