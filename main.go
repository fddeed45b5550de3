// resonance - a terminal mentor for people who build things.
//
// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/resonancehq/resonance/internal/cli"
	"github.com/resonancehq/resonance/internal/config"
	"github.com/resonancehq/resonance/internal/export"
	"github.com/resonancehq/resonance/internal/gateway"
	"github.com/resonancehq/resonance/internal/lang"
	"github.com/resonancehq/resonance/internal/server"
	"github.com/resonancehq/resonance/internal/session"
	"github.com/resonancehq/resonance/internal/store"
	"github.com/resonancehq/resonance/internal/ui/chat"
	"github.com/resonancehq/resonance/internal/ui/styles"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdTUI:
		runTUI(args)
	case cli.CmdServe:
		runServe(args)
	case cli.CmdExport:
		runExport(args)
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	}
}

// =============================================================================
// SETUP HELPERS
// =============================================================================

func loadConfig(args cli.Args) *config.Config {
	var cfg *config.Config
	var err error
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// CLI flags win over file and environment.
	if args.DBPath != "" {
		cfg.DatabasePath = args.DBPath
	}
	if args.Language != "" {
		cfg.Language = args.Language
	}
	if args.Port != 0 {
		cfg.Server.Port = args.Port
	}
	return cfg
}

// openStore picks remote or local storage based on configuration.
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.ServerURL != "" {
		return store.NewRemoteStore(cfg.ServerURL, cfg.ServerToken), nil
	}

	path := cfg.DatabasePath
	if path == "" {
		var err error
		path, err = config.DefaultDatabasePath()
		if err != nil {
			return nil, err
		}
	}
	return store.OpenSQLite(path)
}

func newGateway(cfg *config.Config) *gateway.Client {
	llm := gateway.NewClient(cfg.Gateway.APIKey).WithModel(cfg.Gateway.Model)
	if cfg.Gateway.BaseURL != "" {
		llm = llm.WithBaseURL(cfg.Gateway.BaseURL)
	}
	return llm
}

func startLanguage(cfg *config.Config) lang.Language {
	if l := lang.Language(cfg.Language); l.Valid() {
		return l
	}
	return lang.FromLocale(os.Getenv("LANG"))
}

// =============================================================================
// TUI
// =============================================================================

func runTUI(args cli.Args) {
	if !cli.IsInteractive() {
		fmt.Fprintln(os.Stderr, "resonance needs an interactive terminal; try 'resonance serve' for the API")
		os.Exit(1)
	}

	cfg := loadConfig(args)

	st, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	llm := newGateway(cfg)
	if !llm.IsConfigured() {
		fmt.Fprintln(os.Stderr, "No API key configured. Set OPENROUTER_API_KEY or add it to ~/.resonance/config.toml:")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "  [gateway]")
		fmt.Fprintln(os.Stderr, "  api_key = \"sk-or-...\"")
		os.Exit(1)
	}

	bridge := chat.NewBridge()
	sess := session.New(session.Config{
		Store:     st,
		Completer: llm,
		Language:  startLanguage(cfg),
		Notify:    bridge.Notify,
	})

	ui := chat.New(sess, bridge, styles.NewTheme(), chat.Options{
		ExportDir:    cfg.Export.OutputDir,
		ExportFormat: cfg.Export.Format,
		CompactMode:  cfg.UI.CompactMode,
	})

	// Keep the UI clean; the default logger writes to stderr which fights
	// with the alternate screen.
	log.SetOutput(logFile())

	p := tea.NewProgram(ui, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// logFile opens ~/.resonance/resonance.log for background logging while the
// TUI owns the terminal. Falls back to discarding.
func logFile() io.Writer {
	dir, err := config.Dir()
	if err != nil {
		return io.Discard
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return io.Discard
	}
	f, err := os.OpenFile(filepath.Join(dir, "resonance.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return io.Discard
	}
	return f
}

// =============================================================================
// SERVER
// =============================================================================

func runServe(args cli.Args) {
	cfg := loadConfig(args)

	st, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	llm := newGateway(cfg)

	srv := server.New(st, llm).WithPort(cfg.Server.Port)
	if cfg.Server.AuthToken != "" {
		srv = srv.WithAuth(cfg.Server.AuthToken)
	}
	if cfg.Server.RateLimitPerSecond > 0 {
		srv = srv.WithRateLimit(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst)
	}

	// Hot-reload gateway credentials when the config file changes, so key
	// rotation does not need a restart.
	if path, err := config.Path(); err == nil {
		if w, err := config.NewWatcher(path, func(next *config.Config) {
			llm.Reconfigure(next.Gateway.APIKey, next.Gateway.Model)
			log.Printf("[main] config reloaded, model now %s", llm.Model())
		}); err == nil {
			if err := w.Watch(); err == nil {
				defer w.Close()
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// EXPORT
// =============================================================================

func runExport(args cli.Args) {
	if args.ConversationID == "" {
		fmt.Fprintln(os.Stderr, "Usage: resonance export <conversation-id> [--format markdown|json|text] [--out dir]")
		os.Exit(2)
	}

	cfg := loadConfig(args)
	st, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	conv, err := st.Conversation(context.Background(), args.ConversationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	format := args.Format
	if format == "" {
		format = cfg.Export.Format
	}
	opts := export.DefaultOptions()
	opts.OutputDir = cfg.Export.OutputDir
	if args.OutputDir != "" {
		opts.OutputDir = args.OutputDir
	}

	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	path, err := export.ToFile(conv, exporter, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(path)
}
