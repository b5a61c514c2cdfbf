// Command velora reconciles generated test cases with a requirements document.
package main

import (
	"context"
	"os"

	"github.com/roach88/velora/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
