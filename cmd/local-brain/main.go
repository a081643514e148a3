package main

import (
	"os"

	"github.com/dshills/localbrain/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
