package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hpungsan/wardrobe/internal/config"
	"github.com/hpungsan/wardrobe/internal/db"
	"github.com/hpungsan/wardrobe/internal/extract"
	"github.com/hpungsan/wardrobe/internal/llm"
	"github.com/hpungsan/wardrobe/internal/logging"
	"github.com/hpungsan/wardrobe/internal/mcp"
	"github.com/hpungsan/wardrobe/internal/ops"
	"github.com/hpungsan/wardrobe/internal/prompt"
	"github.com/hpungsan/wardrobe/internal/store"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"show": true, "extract": true, "apply": true, "reset-character": true,
	"on-chat": true, "prompt": true, "settings": true, "fields": true,
	"export": true, "import": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
                     _                 _
  __      ____ _ _ __ __| |_ __ ___ | |__   ___
  \ \ /\ / / _' | '__/ _' | '__/ _ \| '_ \ / _ \
   \ V  V / (_| | | | (_| | | | (_) | |_) |  __/
    \_/\_/ \__,_|_|  \__,_|_|  \___/|_.__/ \___|

  Outfit and location tracker for roleplay chats

  Usage: wardrobe <command> [options]
         wardrobe --help

  MCP server mode requires piped input.`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fatal("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, config.DirName)

	cwd, err := os.Getwd()
	if err != nil {
		cwd = baseDir
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fatal("failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fatal("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	database, err := db.Init(baseDir)
	if err != nil {
		fatal("failed to initialize database: %v", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	deps, err := newDeps(context.Background(), database, cfg, logger)
	if err != nil {
		fatal("failed to load state: %v", err)
	}

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(deps)
		if err := app.Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'wardrobe --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(deps, Version); err != nil {
		fatal("%v", err)
	}
}

// newDeps wires the store, board and extraction engine. A backend that cannot
// be constructed (for example a missing API key) is logged and extraction
// then reports backend errors instead of failing startup.
func newDeps(ctx context.Context, database *sql.DB, cfg *config.Config, logger *zap.Logger) (*ops.Deps, error) {
	st := store.New(database, prompt.DefaultTemplate, logger)
	// Write the defaults on first run and any backfilled schema keys.
	if err := st.Persist(ctx); err != nil {
		return nil, err
	}

	deps := &ops.Deps{
		Store:  st,
		Board:  ops.NewBoard(),
		Config: cfg,
		Logger: logger,
	}

	provider, err := llm.New(cfg.LLM)
	if err != nil {
		logger.Warn("text generation unavailable", zap.String("provider", cfg.LLM.Provider), zap.Error(err))
		return deps, nil
	}
	deps.Engine = extract.NewEngine(provider, logger)
	return deps, nil
}
