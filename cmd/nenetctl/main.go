// Command nenetctl is a read-only inspection CLI for the NENet core: it
// opens the store and audit log directly and prints loaded plates,
// metadata, and audit events. It does not duplicate the daemon's own REPL.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nenet-io/nenet-core/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "nenetctl",
	Short: "Inspect the NENet core's loaded plates, metadata, and audit log",
	Version: version.Version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
