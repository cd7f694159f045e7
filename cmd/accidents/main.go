package main

import (
	"os"

	"github.com/couchcryptid/accidents-etl/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
