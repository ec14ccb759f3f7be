package main

import (
	"os"

	"github.com/cxr-assist-server/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
