// Command overlay resolves node contracts from base profiles and patches.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/overlay/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		if !cli.Reported(err) {
			fmt.Fprintln(os.Stderr, "overlay:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
