// Package main is the leakscan CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/leakscan/internal/cli"
	"github.com/hyperjump/leakscan/internal/config"
	"github.com/hyperjump/leakscan/internal/models"
	"github.com/hyperjump/leakscan/internal/server"
	"github.com/hyperjump/leakscan/internal/watcher"
	"github.com/hyperjump/leakscan/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/leakscan/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if present, and a missing default file falls back to
// defaults plus LEAKSCAN_ environment variables. Returns the config and the path
// that was loaded ("" when none was).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
			}
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			cfg, err := config.FromEnv()
			return cfg, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newLogger(cfg *config.Config, debug bool) (*zap.Logger, error) {
	return utils.NewLogger(cfg.Debug || debug, utils.LogFile{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fatalf("%v", err)
	}
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := argsReorder(os.Args[2:])
	switch command {
	case "server":
		runServer(args)
	case "ingest":
		runIngest(args)
	case "search":
		runSearch(args)
	case "export":
		runExport(args)
	case "documents":
		runDocuments(args)
	case "status":
		runStatus(args)
	case "watch":
		runWatch(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("leakscan version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// local opens storage directly for commands run without a server.
type local struct {
	cfg        *config.Config
	logger     *zap.Logger
	components *Components
}

func openLocal(ctx context.Context, configPath string, debug bool) *local {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := newLogger(cfg, debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	return &local{cfg: cfg, logger: logger, components: components}
}

func (l *local) Close() {
	l.components.Close()
	_ = l.logger.Sync()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := newLogger(cfg, *debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug))

	ctx, stop := signalContext()
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	svc := components.Service
	owner := cfg.Watch.OwnerID
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(ctx context.Context, path string) error {
			_, err := svc.IngestFile(ctx, path, owner)
			return err
		},
		watcher.WithLogger(logger),
	)
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer watchSvc.Stop()
	go watchSvc.SyncExistingFiles()

	srv := server.NewServer(svc, cfg, logger,
		server.WithMetrics(components.Metrics),
		server.WithWatch(watchSvc, resolvedConfigPath))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "upload through a running server instead of opening storage directly")
	owner := fs.String("owner", "cli", "owner id recorded on the uploaded documents")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Println("Usage: leakscan ingest [flags] <file-or-directory>...")
		os.Exit(1)
	}
	format := outputFormat(*output)

	ctx, stop := signalContext()
	defer stop()

	var ingest func(path string) (*models.UploadResult, error)
	exts := []string{".txt"}
	if *serverURL != "" {
		client := cli.NewClient(*serverURL, *owner)
		ingest = func(path string) (*models.UploadResult, error) { return client.Upload(ctx, path) }
	} else {
		l := openLocal(ctx, *configPath, false)
		defer l.Close()
		exts = l.cfg.Watch.Extensions
		ingest = func(path string) (*models.UploadResult, error) {
			return l.components.Service.IngestFile(ctx, path, *owner)
		}
	}

	files, err := collectDumps(fs.Args(), exts)
	if err != nil {
		fatalf("%v", err)
	}
	failed := 0
	for _, path := range files {
		res, err := ingest(path)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if err := cli.WriteUploadResult(os.Stdout, res, format); err != nil {
			fatalf("Output failed: %v", err)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// collectDumps expands directories among paths into the files under them whose
// extension is in exts. Files named explicitly are always kept.
func collectDumps(paths, exts []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() && hasExtension(path, exts) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", p, err)
		}
	}
	return files, nil
}

func hasExtension(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range exts {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, `server URL (use --server "" to open storage directly)`)
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", 0, "results per page (default from config)")
	owner := fs.String("owner", "", "only search this owner's uploads")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Println("Usage: leakscan search [flags] <domain>")
		os.Exit(1)
	}
	format := outputFormat(*output)
	q := &models.SearchQuery{Domain: fs.Arg(0), Page: *page, PageSize: *limit, OwnerID: *owner}

	ctx, stop := signalContext()
	defer stop()

	var result *models.SearchPage
	var err error
	if *serverURL != "" {
		result, err = cli.NewClient(*serverURL, *owner).Search(ctx, q)
	} else {
		l := openLocal(ctx, *configPath, false)
		defer l.Close()
		if q.PageSize == 0 {
			q.PageSize = l.cfg.Search.DefaultPageSize
		}
		result, err = l.components.Service.Search(ctx, q)
	}
	if err != nil {
		fatalf("Search failed: %v", err)
	}
	if err := cli.WriteSearchPage(os.Stdout, result, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, `server URL (use --server "" to open storage directly)`)
	format := fs.String("format", "csv", "export format: csv or xlsx")
	out := fs.String("out", "", "output file or directory (default: generated name in the current directory)")
	owner := fs.String("owner", "", "only export this owner's uploads")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Println("Usage: leakscan export [flags] <domain>")
		os.Exit(1)
	}
	req := models.ExportRequest{Domain: fs.Arg(0), Format: *format, OwnerID: *owner}

	ctx, stop := signalContext()
	defer stop()

	var res *models.ExportResult
	var err error
	if *serverURL != "" {
		res, err = cli.NewClient(*serverURL, *owner).Export(ctx, req)
	} else {
		l := openLocal(ctx, *configPath, false)
		defer l.Close()
		res, err = l.components.Service.Export(ctx, req)
	}
	if err != nil {
		fatalf("Export failed: %v", err)
	}

	dest := exportDestination(*out, res.FileName)
	if err := os.WriteFile(dest, res.Data, 0600); err != nil {
		fatalf("Failed to write %s: %v", dest, err)
	}
	fmt.Printf("Exported %d of %d records to %s\n", res.Rows, res.Total, dest)
	if res.Truncated {
		fmt.Fprintf(os.Stderr, "warning: export truncated to %d rows\n", res.Rows)
	}
}

// exportDestination resolves --out against the generated file name.
func exportDestination(out, fileName string) string {
	if fileName == "" {
		fileName = "export"
	}
	if out == "" {
		return fileName
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, fileName)
	}
	return out
}

func runDocuments(args []string) {
	fs := flag.NewFlagSet("documents", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, `server URL (use --server "" to open storage directly)`)
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", 20, "documents per page")
	owner := fs.String("owner", "", "only list this owner's uploads")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format := outputFormat(*output)
	q := models.ListQuery{OwnerID: *owner, Page: *page, PageSize: *limit}

	ctx, stop := signalContext()
	defer stop()

	var result *models.DocumentPage
	var err error
	if *serverURL != "" {
		result, err = cli.NewClient(*serverURL, *owner).ListDocuments(ctx, q)
	} else {
		l := openLocal(ctx, *configPath, false)
		defer l.Close()
		result, err = l.components.Service.ListDocuments(ctx, q)
	}
	if err != nil {
		fatalf("Listing documents failed: %v", err)
	}
	if err := cli.WriteDocuments(os.Stdout, result, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, `server URL (use --server "" to open storage directly)`)
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format := outputFormat(*output)

	ctx, stop := signalContext()
	defer stop()

	var st *models.StatusReport
	var err error
	if *serverURL != "" {
		st, err = cli.NewClient(*serverURL, "").Status(ctx)
	} else {
		l := openLocal(ctx, *configPath, false)
		defer l.Close()
		st, err = l.components.Service.Status(ctx)
	}
	if err != nil {
		fatalf("Status failed: %v", err)
	}
	if err := cli.WriteStatus(os.Stdout, st, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runWatch(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: leakscan watch <add|remove|list> [path]")
		fmt.Println("  leakscan watch add <path>     Add a drop directory")
		fmt.Println("  leakscan watch remove <path>  Remove a drop directory")
		fmt.Println("  leakscan watch list           List drop directories")
		os.Exit(1)
	}
	sub := args[0]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(argsReorder(args[1:]))
	client := cli.NewClient(*serverURL, "")
	ctx := context.Background()

	switch sub {
	case "add", "remove":
		if fs.NArg() < 1 {
			fmt.Printf("Usage: leakscan watch %s <path>\n", sub)
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		if sub == "add" {
			if err := client.AddWatchDirectory(ctx, path); err != nil {
				fatalf("Add failed: %v", err)
			}
			fmt.Printf("Added: %s\n", path)
			return
		}
		if err := client.RemoveWatchDirectory(ctx, path); err != nil {
			fatalf("Remove failed: %v", err)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		dirs, err := client.WatchDirectories(ctx)
		if err != nil {
			fatalf("List failed: %v", err)
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
	default:
		fatalf("Unknown watch subcommand: %s", sub)
	}
}

func outputFormat(s string) cli.OutputFormat {
	f, err := cli.ParseOutputFormat(s)
	if err != nil {
		fatalf("%v", err)
	}
	return f
}

// argsReorder moves flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them; the flag package stops
// at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printUsage() {
	fmt.Println(`leakscan - leak-dump email indexer and domain search

Usage:
  leakscan server [flags]                 Start the HTTP server and drop-directory watcher
  leakscan ingest [flags] <path>...       Ingest dump files or directories
  leakscan search [flags] <domain>        Search records for a domain
  leakscan export [flags] <domain>        Export records for a domain to CSV or XLSX
  leakscan documents [flags]              List uploaded documents
  leakscan status [flags]                 Show document/record counts and disk usage
  leakscan watch <add|remove|list>        Manage drop directories on a running server
  leakscan version                        Show version
  leakscan help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/leakscan/config.yaml, or ./config.yaml)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to open storage
                     directly; the index admits one writer, so stop the server first.
  --owner string     Owner id (ingest: recorded on documents; search/export/documents: filter)
  --output string    Output format: text or json (default: text)

Search / Documents Flags:
  --page int         Page number (default: 1)
  --limit int        Page size

Export Flags:
  --format string    csv or xlsx (default: csv)
  --out string       Output file or directory

Environment:
  LEAKSCAN_*         Overrides config keys, e.g. LEAKSCAN_SERVER_PORT=9090 (also read from .env)

Examples:
  leakscan server
  leakscan ingest --owner alice combo.txt dumps/
  leakscan search example.com
  leakscan search --output json --page 2 --limit 50 example.com
  leakscan export --format xlsx --out ./exports example.com
  leakscan documents --limit 10
  leakscan status --server ""
  leakscan watch add /srv/drops`)
}
