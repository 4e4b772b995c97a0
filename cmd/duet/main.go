// Command duet runs the Duet offline-first client core.
package main

import (
	"fmt"
	"os"

	"github.com/duetlog/duet/backend/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
