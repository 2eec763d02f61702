package main

import (
	"fmt"
	"os"

	"ytdl-web/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ytdl-web: %v\n", err)
		os.Exit(1)
	}
}
