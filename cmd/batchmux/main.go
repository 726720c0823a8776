package main

import (
	"context"
	"fmt"
	"os"

	"batchmux/internal/cli"
)

// main is a deterministic boundary: it canonicalizes all CLI inputs into an
// Invocation before any engine logic is invoked.
func main() {
	result, err := cli.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(result.ExitCode)
}
