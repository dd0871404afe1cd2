// Package app wires the process together: configuration, logging, tracing,
// the tenant registry, the governed upstream client and the MCP tool
// server, plus the auxiliary CLI commands.
package app

import (
	"fmt"
	"os"
)

var (
	version   = "0.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func Main(args []string) int {
	if len(args) < 2 {
		printHelp()
		return 2
	}

	switch args[1] {
	case "serve":
		return serveCmd(args[2:])
	case "registry":
		return registryCmd(args[2:])
	case "version":
		return versionCmd(args[2:])
	case "help", "-h", "--help":
		printHelp()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[1])
		printHelp()
		return 2
	}
}

func printHelp() {
	fmt.Fprintln(os.Stdout, "promogate")
	fmt.Fprintln(os.Stdout, "")
	fmt.Fprintln(os.Stdout, "Usage:")
	fmt.Fprintln(os.Stdout, "  promogate serve [--dotenv ./.env]")
	fmt.Fprintln(os.Stdout, "  promogate registry validate --path ./tenants.yaml")
	fmt.Fprintln(os.Stdout, "  promogate version [--long] [--json]")
	fmt.Fprintln(os.Stdout, "")
	fmt.Fprintln(os.Stdout, "serve runs the MCP tool server on stdio. Configuration is read from")
	fmt.Fprintln(os.Stdout, "PROMOGATE_* environment variables; see the project README.")
}
