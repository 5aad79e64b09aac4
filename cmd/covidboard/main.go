package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/covidboard/internal/config"
	"github.com/TobiSchelling/covidboard/internal/database"
	"github.com/TobiSchelling/covidboard/internal/dataset"
	"github.com/TobiSchelling/covidboard/internal/fetch"
	"github.com/TobiSchelling/covidboard/internal/logger"
	"github.com/TobiSchelling/covidboard/internal/pipeline"
	"github.com/TobiSchelling/covidboard/internal/scrape"
	"github.com/TobiSchelling/covidboard/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "covidboard",
	Short:   "COVID-19 regional dashboard data pipeline",
	Long:    "covidboard downloads the regional COVID-19 sheets, cleans them, derives the dashboard metrics and serves the charts.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, format := "info", "text"

		// init, version and invitro run without a config
		if cmd.Name() != "init" && cmd.Name() != "version" && cmd.Name() != "invitro" {
			path, err := config.ResolveConfigPath(configPath)
			if err != nil {
				return err
			}
			cfg, err = config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			level, format = cfg.Logging.Level, cfg.Logging.Format
		}
		if verbose {
			level = "debug"
		}
		_, err := logger.New(level, format)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(invitroCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("covidboard", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/covidboard/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the spreadsheet id and the tables to process.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show run history and sink status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Runs:")
		fmt.Printf("  Total: %d\n", stats.Runs)
		fmt.Printf("  Partial: %d\n", stats.PartialRuns)
		fmt.Printf("  Failed: %d\n", stats.FailedRuns)
		fmt.Printf("  Tables written: %d\n", stats.TablesWritten)
		fmt.Printf("  Table failures: %d\n", stats.TableFailures)

		if last, err := db.GetLastRun(); err != nil {
			return err
		} else if last != nil {
			fmt.Printf("\nLast run: %s (%s, %s)\n", humanize.Time(last.StartedAt), last.Status, last.ID)
		}

		fmt.Println("\nTables:")
		for _, t := range cfg.Tables {
			path := dataset.Path(cfg.GetDataDir(), t.Name)
			line := fmt.Sprintf("  %-10s ", t.Name)
			if fi, err := os.Stat(path); err == nil {
				line += fmt.Sprintf("%8s  written %s", humanize.Bytes(uint64(fi.Size())), humanize.Time(fi.ModTime()))
			} else {
				line += "no sink"
			}
			if ok, err := db.GetLastSuccess(t.Name); err == nil && ok != nil && ok.LastDate != "" {
				line += fmt.Sprintf(", data up to %s", ok.LastDate)
			}
			fmt.Println(line)
		}
		return nil
	},
}

// --- run command ---

var (
	dryRun bool
	tables []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, clean and write every configured table",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := newPipeline(db, nil)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(ctx, tables...)
		} else {
			result = pipe.Run(ctx, tables...)
		}
		printResult(result)
		return result.Err()
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Process tables without writing sinks")
	runCmd.Flags().StringSliceVarP(&tables, "table", "t", nil, "Only process the named tables")
}

func printResult(r *pipeline.Result) {
	for i, t := range r.Tables {
		fmt.Printf("\nTable %d/%d: %s\n", i+1, len(r.Tables), t.Name)
		if t.Err != nil {
			fmt.Printf("  Error: %v\n", t.Err)
		} else {
			fmt.Printf("  %s\n", t.Summary())
		}
	}
	if r.Workbook != "" && r.WorkbookErr == nil {
		fmt.Printf("\nWorkbook: %s\n", r.Workbook)
	}
	fmt.Printf("\nRun %s: %s in %s\n", r.RunID, r.Status(), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}

func newPipeline(db *database.DB, reg prometheus.Registerer) (*pipeline.Pipeline, error) {
	f, err := fetch.New(fetch.Options{
		URLTemplate:   cfg.Source.URLTemplate,
		SpreadsheetID: cfg.Source.ResolveSpreadsheetID(),
		Timeout:       cfg.Source.Timeout,
		CacheTTL:      cfg.Source.CacheTTL,
		CacheEntries:  cfg.Source.CacheEntries,
		RatePerSecond: cfg.Source.RatePerSecond,
		Encoding:      cfg.Source.Encoding,
	})
	if err != nil {
		return nil, err
	}
	var metrics *pipeline.Metrics
	if reg != nil {
		metrics = pipeline.NewMetrics(reg)
	}
	return pipeline.New(cfg, db, &pipeline.Sources{Fetcher: f}, metrics), nil
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port())
		fmt.Println("Press Ctrl+C to stop")
		return serve(ctx, db, newRegistry())
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
	scheduleCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func port() int {
	if servePort != 0 {
		return servePort
	}
	return cfg.Server.Port
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func serve(ctx context.Context, db *database.DB, reg *prometheus.Registry) error {
	store := server.NewStore(cfg.GetDataDir(), cfg.Server.CacheTTL)
	srv, err := server.New(cfg, db, store, reg)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, port())
}

// --- schedule command ---

var (
	scheduleSpec string
	withServer   bool
	keepRuns     int
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on a schedule, optionally serving the dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		reg := newRegistry()
		pipe, err := newPipeline(db, reg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		spec := scheduleSpec
		if spec == "" {
			spec = cfg.Run.Schedule
		}
		job := func() {
			r := pipe.Run(ctx)
			zap.S().Infof("scheduled run %s finished: %s", r.RunID, r.Status())
			if keepRuns > 0 {
				if n, err := db.PruneRuns(keepRuns); err != nil {
					zap.S().Warnf("pruning run history: %v", err)
				} else if n > 0 {
					zap.S().Debugf("pruned %d old runs", n)
				}
			}
		}

		c := cron.New()
		if err := c.AddFunc(spec, job); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", spec, err)
		}
		c.Start()
		defer c.Stop()
		zap.S().Infof("pipeline scheduled (%s)", spec)

		// first run right away so the dashboard has data
		go job()

		if withServer {
			return serve(ctx, db, reg)
		}
		<-ctx.Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "spec", "", "Cron spec (default from config run.schedule)")
	scheduleCmd.Flags().BoolVar(&withServer, "serve", false, "Also serve the dashboard")
	scheduleCmd.Flags().IntVar(&keepRuns, "keep", 100, "Run history entries to keep (0 keeps all)")
}

// --- invitro command ---

var invitroOut string

var invitroCmd = &cobra.Command{
	Use:   "invitro [page.html]",
	Short: "Parse a saved clinic test-results page into a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := scrape.Load(cmd.Context(), "invitro", args[0])
		if err != nil {
			return err
		}
		if invitroOut == "" {
			return t.WriteCSV(os.Stdout)
		}
		path, err := dataset.WriteFile(invitroOut, t)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %d days to %s\n", t.Rows(), path)
		return nil
	},
}

func init() {
	invitroCmd.Flags().StringVarP(&invitroOut, "out", "o", "", "Directory to write invitro.csv to (default stdout)")
}

func openDB() (*database.DB, error) {
	return database.OpenInDir(cfg.GetStateDir())
}
