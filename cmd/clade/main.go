// SPDX-License-Identifier: Apache-2.0

// Clade is an evolution orchestration engine: populations of role-specialized
// LLM agents iterate on a problem mandate until they converge or run out of
// budget. This command serves the HTTP API, runs one-off cycles, and exposes
// the MCP tool surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/imoran/clade/pkg/config"
	"github.com/imoran/clade/pkg/telemetry"
)

const version = "0.1.0"

type globalFlags struct {
	ConfigPath string
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	cfg, err := config.Load(global.ConfigPath)
	if err != nil {
		fatal(err)
	}
	telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	switch args[0] {
	case "serve":
		ensureNoArgs(args[1:])
		if err := runServe(ctx, cfg); err != nil {
			fatal(err)
		}
	case "run":
		if len(args) < 2 {
			fatal(fmt.Errorf("usage: clade run <mandate.yaml>"))
		}
		if err := runOnce(ctx, cfg, args[1], global.JSON); err != nil {
			fatal(err)
		}
	case "mcp":
		ensureNoArgs(args[1:])
		if err := runMCP(ctx, cfg); err != nil {
			fatal(err)
		}
	case "version":
		fmt.Println(version)
	case "help":
		printUsage()
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --config")
			}
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "--config=")
		default:
			return flags, nil, fmt.Errorf("unknown flag %q", arg)
		}
	}
	return flags, nil, nil
}

func printUsage() {
	fmt.Println(`Clade evolution engine

Usage:
  clade [global flags] <command> [args]

Global flags:
  --config <path>      Path to config.yaml
  --json               JSON output for run results

Commands:
  serve                Start the HTTP API server
  run <mandate.yaml>   Run one evolution cycle and print the result
  mcp                  Serve the MCP tool surface on stdio
  version              Print the version
  help                 Show this help`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func ensureNoArgs(args []string) {
	if len(args) > 0 {
		fatal(fmt.Errorf("unexpected args: %v", args))
	}
}
