package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/sitrep/pkg/cache"
	"github.com/ormasoftchile/sitrep/pkg/config"
	"github.com/ormasoftchile/sitrep/pkg/console"
	"github.com/ormasoftchile/sitrep/pkg/engine"
	"github.com/ormasoftchile/sitrep/pkg/export"
	"github.com/ormasoftchile/sitrep/pkg/filter"
	"github.com/ormasoftchile/sitrep/pkg/irm"
	"github.com/ormasoftchile/sitrep/pkg/notify"
	"github.com/ormasoftchile/sitrep/pkg/render"
	"github.com/ormasoftchile/sitrep/pkg/tui"
	"github.com/ormasoftchile/sitrep/pkg/window"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	loadDotEnv() // load .env file if present (gitignored)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// loadDotEnv reads a .env file from the working directory and sets
// any variables that aren't already set in the environment.
// Lines are KEY=VALUE (or KEY="VALUE"). Comments (#) and blanks are skipped.
// The .env file is gitignored so tokens never end up in source control.
func loadDotEnv() {
	f, err := os.Open(".env")
	if err != nil {
		return // no .env file — that's fine
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		// Remove surrounding quotes
		val = strings.Trim(val, `"'`)
		// Don't overwrite existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// usageError marks failures caused by how the tool was invoked (bad
// flags, bad filter, missing credentials) rather than by the upstream.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// exitCode maps error kinds to process exit codes: invocation and
// configuration problems exit 2, operational failures exit 1.
func exitCode(err error) int {
	var ue usageError
	var winErr *window.InvalidWindowError
	var cfgErr *config.ValidationError
	if errors.As(err, &ue) || errors.As(err, &winErr) || errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:   "sitrep",
	Short: "Incident situation reports from Grafana IRM",
	Long:  "sitrep — pull incidents from a Grafana IRM instance, aggregate them into daily, weekly, or monthly situation reports, and deliver them to the terminal, files, or Google Chat.",
}

var (
	flagConfig string
	flagDebug  bool
)

// setupLogging installs the global slog handler before any command
// body runs. Debug output goes to stderr so piped stdout stays clean.
func setupLogging(cmd *cobra.Command, args []string) {
	level := slog.LevelWarn
	if flagDebug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads the effective configuration for a command run.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, usageError{err}
	}
	if err := cfg.Check(); err != nil {
		return nil, usageError{err}
	}
	return cfg, nil
}

// newEngine builds the fetch/cache/aggregate pipeline for commands that
// talk to the incident API.
func newEngine(cfg *config.Config, noCache bool) (*engine.Engine, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, usageError{err}
	}

	client := irm.New(cfg.GrafanaURL, cfg.Token)
	client.HTTPClient.Timeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	client.Retry.MaxAttempts = cfg.MaxAttempts
	client.Logger = slog.Default()

	var store *cache.Cache
	if !noCache {
		var err error
		store, err = cache.New(cfg.CacheDir, slog.Default())
		if err != nil {
			// A broken cache dir degrades to uncached fetches rather
			// than blocking the report.
			slog.Warn("cache unavailable, fetching without it", "dir", cfg.CacheDir, "err", err)
			store = nil
		}
	}

	eng := engine.New(client, store)
	eng.SLADays = cfg.SLADays
	eng.NoCache = noCache
	eng.Concurrency = cfg.FetchConcurrency
	eng.EnrichActivity = true
	return eng, nil
}

// --- report ---

var (
	reportDate      string
	reportWeekly    bool
	reportMonthly   bool
	reportOffset    int
	reportFilter    string
	reportMaxActive int
	reportView      bool
	reportSaveMD    bool
	reportMDDir     string
	reportJSONOut   string
	reportWebhook   string
	reportNoChat    bool
	reportNoCache   bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build and deliver an incident report",
	Long: `Build an incident report for a period and print it to the terminal.

The period defaults to yesterday; --weekly and --monthly select the
current calendar week or month, --offset steps periods back in time,
and --date pins a single day.

Examples:
  sitrep report
  sitrep report --weekly --offset 1
  sitrep report --monthly --filter 'severity == "Critical"'
  sitrep report --date 2025-10-21 --save-md`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func resolveReportWindow(cmd *cobra.Command, now time.Time) (window.Window, error) {
	if reportWeekly && reportMonthly {
		return window.Window{}, &window.InvalidWindowError{Reason: "--weekly and --monthly are mutually exclusive"}
	}
	kind := window.Daily
	if reportWeekly {
		kind = window.Weekly
	}
	if reportMonthly {
		kind = window.Monthly
	}

	offset := reportOffset
	if kind == window.Daily && reportDate == "" && !cmd.Flags().Changed("offset") {
		// A bare daily report covers the last finished day, not the
		// partial one in progress.
		offset = 1
	}
	return window.Resolve(kind, reportDate, offset, now)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg, reportNoCache)
	if err != nil {
		return err
	}

	win, err := resolveReportWindow(cmd, eng.Now())
	if err != nil {
		return err
	}

	if reportFilter != "" {
		f, err := filter.Compile(reportFilter)
		if err != nil {
			return usageError{err}
		}
		eng.Filter = f
	}

	ctx := cmd.Context()
	rep, err := eng.BuildReport(ctx, win)
	if err != nil {
		return err
	}

	markdown := render.Markdown(rep, render.Options{MaxActive: reportMaxActive})
	if reportView {
		fmt.Print(render.Terminal(markdown))
	} else {
		fmt.Print(markdown)
	}

	if reportSaveMD {
		path := filepath.Join(reportMDDir, render.Filename(win))
		if err := os.WriteFile(path, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("save markdown: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ saved %s\n", path)
	}

	if reportJSONOut != "" {
		payload := export.Build(rep, markdown)
		if err := export.Write(reportJSONOut, payload); err != nil {
			return fmt.Errorf("write JSON export: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ saved %s\n", reportJSONOut)
	}

	webhook := reportWebhook
	if webhook == "" {
		webhook = cfg.WebhookURL
	}
	if webhook != "" && !reportNoChat {
		title, sections := render.Chat(rep)
		if err := notify.NewClient().SendCard(ctx, webhook, title, sections); err != nil {
			return fmt.Errorf("send chat message: %w", err)
		}
		fmt.Fprintln(os.Stderr, "✓ posted to chat")
	}

	return nil
}

// --- fetch-all ---

var (
	fetchYear        int
	fetchConcurrency int
)

var fetchAllCmd = &cobra.Command{
	Use:   "fetch-all",
	Short: "Warm the cache with every weekly window of a year",
	Args:  cobra.NoArgs,
	RunE:  runFetchAll,
}

func runFetchAll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg, false)
	if err != nil {
		return err
	}
	if eng.Cache == nil {
		return fmt.Errorf("cache unavailable, nothing to warm")
	}
	if fetchConcurrency > 0 {
		eng.Concurrency = fetchConcurrency
	}

	year := fetchYear
	if year == 0 {
		year = eng.Now().In(window.Anchor).Year()
	}

	fmt.Printf("Warming weekly cache for %d...\n", year)
	stats, err := eng.WarmYear(cmd.Context(), year)
	if err != nil {
		return err
	}
	fmt.Printf("✓ warmed %d windows (%d hits, %d misses)\n",
		stats.Windows-stats.Failures, eng.Cache.Hits(), eng.Cache.Misses())
	if stats.Failures > 0 {
		return fmt.Errorf("%d of %d windows failed to warm", stats.Failures, stats.Windows)
	}
	return nil
}

// --- cache ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Disk cache operations",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry count, size and age range",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := cache.New(cfg.CacheDir, slog.Default())
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}

	stats, err := store.Stats()
	if err != nil {
		return fmt.Errorf("read cache stats: %w", err)
	}

	fmt.Printf("Cache dir: %s\n", cfg.CacheDir)
	fmt.Printf("Entries:   %d\n", stats.EntryCount)
	fmt.Printf("Size:      %.1f KiB\n", float64(stats.TotalBytes)/1024)
	if stats.EntryCount > 0 {
		fmt.Printf("Oldest:    %s ago\n", render.HumanDuration(stats.OldestAge))
		fmt.Printf("Newest:    %s ago\n", render.HumanDuration(stats.NewestAge))
	}
	return nil
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cache entry",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := cache.New(cfg.CacheDir, slog.Default())
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}

	n, err := store.Clear()
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	fmt.Printf("✓ cleared %d cache entries\n", n)
	return nil
}

// --- browse ---

var browseFilter string

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse active incidents interactively",
	Args:  cobra.NoArgs,
	RunE:  runBrowse,
}

func runBrowse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg, false)
	if err != nil {
		return err
	}
	if browseFilter != "" {
		f, err := filter.Compile(browseFilter)
		if err != nil {
			return usageError{err}
		}
		eng.Filter = f
	}
	return tui.Run(eng)
}

// --- query ---

var queryFilter string

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query incident data: one-shot with --filter, REPL without",
	Args:  cobra.NoArgs,
	RunE:  runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg, false)
	if err != nil {
		return err
	}
	if queryFilter == "" {
		return console.New(eng).Run(cmd.Context())
	}

	f, err := filter.Compile(queryFilter)
	if err != nil {
		return usageError{err}
	}
	eng.Filter = f

	incidents, err := eng.ActiveIncidents(cmd.Context())
	if err != nil {
		return err
	}
	if len(incidents) == 0 {
		fmt.Println("No matching incidents.")
		return nil
	}
	now := eng.Now()
	for _, in := range incidents {
		owner := "unassigned"
		if in.HasAssignee {
			owner = "team"
			if in.Assignee != "" {
				owner = in.Assignee
			}
		}
		fmt.Printf("#%-6s %-8s %-10s %s  %s\n",
			in.ID, in.Severity, render.HumanDuration(in.Age(now)), owner, in.Title)
	}
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration operations",
}

var configCheckCmd = &cobra.Command{
	Use:   "check [sitrep.yaml]",
	Short: "Validate a config file against the schema",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigCheck,
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	path := config.DefaultFile
	if len(args) > 0 {
		path = args[0]
	}

	cfg, errs := config.ValidateFile(path)
	var fatal []*config.ValidationError
	for _, e := range errs {
		if e.Severity == "warning" {
			fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "    at: %s\n", e.Path)
			}
			continue
		}
		fatal = append(fatal, e)
	}
	if len(fatal) > 0 {
		fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", len(fatal))
		for i, e := range fatal {
			fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
			}
		}
		return usageError{fmt.Errorf("validation failed with %d error(s)", len(fatal))}
	}

	fmt.Printf("✓ %s is valid (Grafana %s)\n", path, orUnset(cfg.GrafanaURL))
	return nil
}

func orUnset(s string) string {
	if s == "" {
		return "URL unset"
	}
	return s
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Export the config JSON Schema to stdout",
	Args:  cobra.NoArgs,
	RunE:  runConfigSchema,
}

func runConfigSchema(cmd *cobra.Command, args []string) error {
	data, err := config.GenerateSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sitrep %s (build: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file (default "+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging on stderr")
	rootCmd.PersistentPreRun = setupLogging

	// report flags
	reportCmd.Flags().StringVar(&reportDate, "date", "", "Report a single local day (YYYY-MM-DD)")
	reportCmd.Flags().BoolVar(&reportWeekly, "weekly", false, "Report the Tuesday-anchored week")
	reportCmd.Flags().BoolVar(&reportMonthly, "monthly", false, "Report the calendar month")
	reportCmd.Flags().IntVar(&reportOffset, "offset", 0, "Periods back from the current one (0 = current)")
	reportCmd.Flags().StringVar(&reportFilter, "filter", "", "Incident filter expression, e.g. 'severity == \"Critical\"'")
	reportCmd.Flags().IntVar(&reportMaxActive, "max-active", 0, "Cap the active incident list (0 = unlimited)")
	reportCmd.Flags().BoolVar(&reportView, "view", false, "Render the report for the terminal instead of printing raw markdown")
	reportCmd.Flags().BoolVar(&reportSaveMD, "save-md", false, "Save the markdown document next to the terminal output")
	reportCmd.Flags().StringVar(&reportMDDir, "md-dir", ".", "Directory for --save-md output")
	reportCmd.Flags().StringVar(&reportJSONOut, "json-out", "", "Write a JSON export of the report to this path")
	reportCmd.Flags().StringVar(&reportWebhook, "webhook", "", "Google Chat webhook URL (overrides config)")
	reportCmd.Flags().BoolVar(&reportNoChat, "no-chat", false, "Skip the chat webhook even when configured")
	reportCmd.Flags().BoolVar(&reportNoCache, "no-cache", false, "Bypass the disk cache for this run")

	// fetch-all flags
	fetchAllCmd.Flags().IntVar(&fetchYear, "year", 0, "Year to warm (default: current year)")
	fetchAllCmd.Flags().IntVar(&fetchConcurrency, "concurrency", 0, "Concurrent window fetches (default: fetch_concurrency from config)")

	// query flags
	queryCmd.Flags().StringVar(&queryFilter, "filter", "", "Run one filter expression against active incidents and exit")

	// browse flags
	browseCmd.Flags().StringVar(&browseFilter, "filter", "", "Incident filter expression")

	// cache subcommands
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	// config subcommands
	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configSchemaCmd)

	// root subcommands
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(fetchAllCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
