package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ahmedgfathy/contaboo/internal/config"
	"github.com/ahmedgfathy/contaboo/internal/extract"
	"github.com/ahmedgfathy/contaboo/internal/patterns"
	"github.com/ahmedgfathy/contaboo/internal/store"
)

var version = "0.1.0-dev"

// Global flags, accepted before or after the command name.
var (
	globalDBPath      string
	globalDatabaseURL string
	globalConfigPath  string
	globalLogLevel    string
	globalMaskChar    string
	globalVerbose     bool
)

func main() {
	args := parseGlobalFlags(os.Args[1:])
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch args[0] {
	case "import":
		err = runImport(args[1:])
	case "extract":
		err = runExtract(args[1:])
	case "mask":
		err = runMask(args[1:])
	case "analyze":
		err = runAnalyze(args[1:])
	case "clean":
		err = runClean(args[1:])
	case "list":
		err = runList(args[1:])
	case "search":
		err = runSearch(args[1:])
	case "stats":
		err = runStats(args[1:])
	case "reextract":
		err = runReExtract(args[1:])
	case "mcp":
		err = runMCP(args[1:])
	case "version", "--version":
		fmt.Printf("contaboo %s (patterns %s)\n", version, patterns.Version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := hintFor(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

// parseGlobalFlags strips global flags from args and records them.
func parseGlobalFlags(args []string) []string {
	valued := map[string]*string{
		"--db":           &globalDBPath,
		"--database-url": &globalDatabaseURL,
		"--config":       &globalConfigPath,
		"--log-level":    &globalLogLevel,
		"--mask-char":    &globalMaskChar,
	}

	var filtered []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--verbose" {
			globalVerbose = true
			continue
		}
		name, value, hasValue := strings.Cut(arg, "=")
		dst, ok := valued[name]
		if !ok {
			filtered = append(filtered, arg)
			continue
		}
		if hasValue {
			*dst = value
			continue
		}
		if i+1 < len(args) {
			*dst = args[i+1]
			i++
		}
	}
	return filtered
}

// commandFlags carries the per-command settings that also live in config.
type commandFlags struct {
	workers     string
	clean       bool
	metricsAddr string
}

func resolveConfig(cf commandFlags) (config.ResolvedConfig, error) {
	level := globalLogLevel
	if globalVerbose {
		level = "debug"
	}
	opts := config.ResolveOptions{
		ConfigPath:     globalConfigPath,
		CLIDBPath:      globalDBPath,
		CLIDatabaseURL: globalDatabaseURL,
		CLILogLevel:    level,
		CLIWorkers:     cf.workers,
		CLIMaskChar:    globalMaskChar,
		CLIMetricsAddr: cf.metricsAddr,
	}
	if cf.clean {
		opts.CLIClean = "true"
	}
	return config.ResolveConfig(opts)
}

// newLogger builds the process logger. Debug runs get the console encoder;
// everything else logs JSON to stderr.
func newLogger(cfg config.ResolvedConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel.Value)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Debug() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// openStore opens the configured backend.
func openStore(ctx context.Context, cfg config.ResolvedConfig, logger *zap.Logger) (store.Store, error) {
	s, err := store.Open(ctx, store.StoreConfig{
		DBPath:      cfg.DBPath.Value,
		DatabaseURL: cfg.DatabaseURL.Value,
		Extractor:   extract.NewPipeline(),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

// app is what a store-backed command needs.
type app struct {
	cfg    config.ResolvedConfig
	logger *zap.Logger
	store  store.Store
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	_ = a.logger.Sync()
}

func newApp(ctx context.Context, cf commandFlags) (*app, error) {
	cfg, err := resolveConfig(cf)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, store: s}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func hintFor(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "opening store"):
		return "Verify the DB path is valid and writable (--db, CONTABOO_DB), or check DATABASE_URL"
	case strings.Contains(msg, "invalid workers"), strings.Contains(msg, "invalid mask_char"),
		strings.Contains(msg, "invalid log_level"), strings.Contains(msg, "invalid clean_on_import"):
		return "Check " + config.DefaultConfigPath() + ", .env and CONTABOO_* variables"
	}
	return ""
}

func printUsage() {
	fmt.Printf(`contaboo %s - Arabic/English real-estate listing extraction and QA

Usage:
  contaboo <command> [arguments]

Commands:
  import <path>...    Import WhatsApp exports, CSV/TSV, JSON or HTML listings
  extract [text]      Extract purpose, area, price, broker and type from text
  mask [text]         Mask mobile numbers in text
  analyze [text]      Detect quality defects and score a listing
  clean [text]        Auto-clean a listing and show the improvement
  list                List stored listings
  search <query>      Full-text search over stored listings
  stats               Show extraction coverage statistics
  reextract           Recompute extracted fields for every stored listing
  mcp                 Start the MCP server on stdio
  version             Print version

Text commands read stdin when no text is given.

Import Flags:
  -r, --recursive     Recursively import from directories
  -n, --dry-run       Show what would be imported without writing
  --clean             Auto-clean listings before storing
  --workers <n>       Listings processed in parallel (default: %d)
  --metrics-addr <a>  Serve Prometheus metrics while importing

Text Flags:
  --auth              Show full mobile numbers
  --html              Treat input as HTML markup (analyze, clean)
  --record            Treat input as a JSON object of fields (analyze, clean)
  --chat              Treat input as a WhatsApp export (extract)
  --file <path>       Read input from a file
  --json              Print JSON

Global Flags:
  --db <path>           Database path (default: %s)
  --database-url <url>  PostgreSQL URL; overrides --db
  --config <path>       Config file (default: %s)
  --log-level <level>   debug, info, warn or error
  --mask-char <c>       Masking character (default: %s)
  --verbose             Debug logging
`, version, config.DefaultWorkers, config.DefaultDBPath, "~/.contaboo/config.yaml", config.DefaultMaskChar)
}
