package main

import (
	"os"

	"model-registrar/internal/adapters/primary/cli"
)

// Build information injected via ldflags at build time.
var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
