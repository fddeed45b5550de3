// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides argument parsing and non-TUI command handlers for
// resonance.
package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Version information (can be overridden at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdServe
	CmdExport
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	Language   string
	DBPath     string

	// serve
	Port int

	// export
	ConversationID string
	Format         string
	OutputDir      string

	// Raw args remaining after flag parsing
	Raw []string
}

const usageText = `resonance - a terminal mentor for people who build things

Streams replies from OpenRouter, remembers your conversations locally,
and answers in English or Chinese depending on how you ask.

Usage:
  resonance                       Start the chat TUI (default)
  resonance serve                 Run the HTTP API server
  resonance export <id>           Export a conversation to a file
  resonance version               Show version information
  resonance help                  Show this help

Flags:
  --config <path>    Config file (default ~/.resonance/config.toml)
  --db <path>        SQLite database path
  --lang <en|zh>     Startup language
  --port <n>         Server port (serve)
  --format <f>       Export format: markdown, json, text (export)
  --out <dir>        Export output directory (export)

Environment:
  OPENROUTER_API_KEY   API key (overrides config file)
  RESONANCE_MODEL      Completion model
  RESONANCE_SERVER_URL Use a remote resonance server for storage
`

// Parse reads os.Args and returns the command plus parsed arguments.
func Parse() (Command, Args) {
	args := Args{}
	argv := os.Args[1:]

	cmd := CmdTUI
	if len(argv) > 0 && !strings.HasPrefix(argv[0], "-") {
		switch argv[0] {
		case "serve":
			cmd = CmdServe
		case "export":
			cmd = CmdExport
		case "version", "-v", "--version":
			cmd = CmdVersion
		case "help", "-h", "--help":
			cmd = CmdHelp
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", argv[0], usageText)
			os.Exit(2)
		}
		argv = argv[1:]
	}

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		next := func() string {
			if i+1 < len(argv) {
				i++
				return argv[i]
			}
			fmt.Fprintf(os.Stderr, "Flag %s needs a value\n", arg)
			os.Exit(2)
			return ""
		}

		switch arg {
		case "--config":
			args.ConfigPath = next()
		case "--db":
			args.DBPath = next()
		case "--lang":
			args.Language = next()
		case "--port":
			port, err := strconv.Atoi(next())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid port: %v\n", err)
				os.Exit(2)
			}
			args.Port = port
		case "--format":
			args.Format = next()
		case "--out":
			args.OutputDir = next()
		case "-h", "--help":
			PrintUsage()
			os.Exit(0)
		default:
			args.Raw = append(args.Raw, arg)
		}
	}

	if cmd == CmdExport && len(args.Raw) > 0 {
		args.ConversationID = args.Raw[0]
	}
	return cmd, args
}

// PrintUsage writes the usage text to stdout.
func PrintUsage() {
	fmt.Print(usageText)
}

// PrintVersion writes version information to stdout.
func PrintVersion() {
	fmt.Printf("resonance %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
}
