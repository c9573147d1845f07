// Package main is the shikibetsu CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	if err := NewRootCmd(version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
