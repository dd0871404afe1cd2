package app

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/promogate/promogate/internal/tenant"
)

func registryCmd(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "registry: missing subcommand (use: validate)")
		return 2
	}
	switch args[0] {
	case "validate":
		return runRegistryValidate(args[1:], os.Stdout, os.Stderr)
	default:
		fmt.Fprintf(os.Stderr, "registry: unknown subcommand %q (use: validate)\n", args[0])
		return 2
	}
}

func runRegistryValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("registry validate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	path := fs.String("path", "./tenants.yaml", "")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "registry validate: %v\n", err)
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(stderr, "registry validate: unexpected positional arguments")
		return 2
	}

	data, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintf(stderr, "registry validate: %v\n", err)
		return 1
	}
	file, err := tenant.ParseRegistryFile(data)
	if err != nil {
		fmt.Fprintf(stderr, "registry validate: %v\n", err)
		return 1
	}

	ids := make([]string, 0, len(file.Tenants))
	for id := range file.Tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintf(stdout, "%s: ok (%d tenants)\n", *path, len(ids))
	for _, id := range ids {
		entry := file.Tenants[id]
		fmt.Fprintf(stdout, "  %s: %d accounts, %d pages\n", id, len(entry.Accounts), len(entry.Pages))
	}
	return 0
}
