// Command nenetd is the NENet core daemon: it mediates between the NEC
// upstream control service, interface clients, and the JF plate hardware
// pool, keeping the metadata table coherent across all three.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nenet-io/nenet-core/pkg/nenet"
	"github.com/nenet-io/nenet-core/pkg/util"
	"github.com/nenet-io/nenet-core/pkg/version"
)

func main() {
	baseDir, err := os.Getwd()
	if err != nil {
		util.Fatalf("resolving working directory: %v", err)
	}

	util.Infof("NENet core %s (%s) starting", version.Version, version.GitCommit)

	app, err := nenet.Bootstrap(nenet.DefaultConfigPath(baseDir), nenet.DefaultAuditPath(baseDir))
	if err != nil {
		util.Errorf("initialization failed: %v", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		util.Info("received shutdown signal")
		app.Shutdown()
		os.Exit(0)
	}()

	runREPL(app)
}

// runREPL implements the CLI read-eval loop from §6: quit/exit, status,
// help. Anything else is reported and ignored.
func runREPL(app *nenet.App) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("NENet core ready. Type 'help' for commands.")

	for {
		fmt.Print("nenetd> ")
		if !scanner.Scan() {
			break
		}
		cmd := strings.TrimSpace(scanner.Text())

		switch cmd {
		case "quit", "exit":
			app.Shutdown()
			os.Exit(0)
		case "status":
			app.Shared.LogState("status")
		case "help":
			printHelp()
		case "":
			// ignore blank lines
		default:
			fmt.Printf("unknown command: %q (try 'help')\n", cmd)
		}
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  status   dump shared-state summary")
	fmt.Println("  help     print this command list")
	fmt.Println("  quit     shut down and exit")
	fmt.Println("  exit     alias for quit")
}
