// Command dutopia scans, aggregates and serves filesystem usage
// statistics.
package main

import (
	"fmt"
	"os"

	"github.com/sganis/dutopia/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
