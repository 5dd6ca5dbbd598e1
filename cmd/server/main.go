// Command jobqueue runs the HTTP API and worker pool in a single process.
package main

import (
	"fmt"
	"os"

	"github.com/v-rdyy/jobqueue/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
