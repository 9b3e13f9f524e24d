package main

import (
	"fmt"
	"os"
)

var version = "0.1.0-dev"

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "slidecycle: %s\n", err)
		os.Exit(1)
	}
}
