package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCommand().Execute(); err != nil {
		// An interrupt already reported itself through the status line.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "texbuild:", err)
		}
		return 1
	}
	return 0
}
