// GeneSippr Launcher - runs the GeneSippr pipeline on MiSeq run folders.
//
// - No args + display available → GUI mode
// - No args + no display → CLI help
// - Only --config <file> → GUI mode with that configuration
// - Subcommands/flags → CLI mode
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/olcbioinformatics/sippr-launcher/internal/cli"
	"github.com/olcbioinformatics/sippr-launcher/internal/gui"
)

func main() {
	args := os.Args[1:]

	if configFile, ok := guiArgs(args); ok && gui.HasDisplay() {
		if err := gui.Run(configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if len(args) == 0 {
		args = []string{"--help"}
	}
	if err := cli.Execute(args); err != nil {
		os.Exit(1)
	}
}

// guiArgs reports whether args select GUI mode: nothing at all, or only a
// --config flag. It returns the config file given, if any.
func guiArgs(args []string) (string, bool) {
	configFile := ""
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" || arg == "-c":
			if i+1 >= len(args) {
				return "", false
			}
			configFile = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			configFile = strings.TrimPrefix(arg, "--config=")
		default:
			return "", false
		}
	}
	return configFile, true
}
