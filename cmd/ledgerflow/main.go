// Command ledgerflow runs a fungible token ledger network from a CUE
// configuration.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ledgerflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
