package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"errata-harvester/internal/collector"
	"errata-harvester/internal/config"
	"errata-harvester/internal/metrics"
	"errata-harvester/internal/result"
	"errata-harvester/internal/server"
	"errata-harvester/internal/store"
	"errata-harvester/internal/summarizer"
	"errata-harvester/internal/task"
	"errata-harvester/pkg/logger"
	"errata-harvester/pkg/mq"
)

var flagKeys = map[string]string{
	"verbose":      "verbose",
	"store":        "store.path",
	"report-dir":   "report.dir",
	"pdf":          "report.pdf",
	"llm-url":      "llm.url",
	"api-token":    "llm.token",
	"model":        "llm.model",
	"year":         "listing.year",
	"browser":      "browser.enabled",
	"driver-path":  "browser.driver_path",
	"mirror-dsn":   "mirror.dsn",
	"nats-url":     "notify.nats_url",
	"metrics-file": "metrics.file",
	"http-addr":    "server.addr",
}

func main() {
	var (
		cfgFile string
		cfg     *config.Config
		log     *zap.Logger
	)
	v := viper.New()

	root := &cobra.Command{
		Use:           "errata-harvester",
		Short:         "Harvest Red Hat errata, enrich them with CVE ids and AI summaries, and report",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmd.Flags().VisitAll(func(f *pflag.Flag) {
				if key, ok := flagKeys[f.Name]; ok && err == nil {
					err = v.BindPFlag(key, f)
				}
			})
			if err != nil {
				return err
			}
			if noHeadless, _ := cmd.Flags().GetBool("no-headless"); noHeadless {
				v.Set("browser.headless", false)
			}
			if cfg, err = config.Load(v, cfgFile); err != nil {
				return err
			}
			log = logger.New(cfg.Verbose)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	pf.BoolP("verbose", "v", false, "debug logging")
	pf.String("store", "", "JSON store path (default cve_data.json)")
	pf.String("report-dir", "", "directory for CSV/PDF reports (default .)")
	pf.Bool("pdf", false, "also write a PDF report")

	collect := &cobra.Command{
		Use:   "collect",
		Short: "Run one incremental harvest",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := runCollect(cmd.Context(), cfg, log)
			if run != nil {
				fmt.Printf("Harvest %s: %d new, %d already stored, %d failed\n", run.State, run.Added, run.Known, run.Failed)
				if run.ReportPath != "" {
					fmt.Printf("Report -> %s\n", run.ReportPath)
				}
			}
			return err
		},
	}
	harvestFlags(collect.Flags())

	export := &cobra.Command{
		Use:   "export",
		Short: "Write a report from the stored advisories without harvesting",
		RunE: func(cmd *cobra.Command, args []string) error {
			coll := store.NewFileStore(cfg.Store.Path, log).Load()
			path, err := result.NewExporter(cfg.Report.Dir, cfg.Report.PDF, log).Export(coll)
			if err != nil {
				return err
			}
			if path != "" {
				fmt.Printf("Exported -> %s\n", path)
			}
			return nil
		},
	}

	serve := &cobra.Command{
		Use:   "server",
		Short: "Serve stored advisories, reports and metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := metrics.New()
			harvest := func(ctx context.Context) (*task.Run, error) {
				return harvestWith(ctx, cfg, log, m)
			}
			srv := server.New(store.NewFileStore(cfg.Store.Path, log), harvest, m.Registry, log)
			return srv.ListenAndServe(cmd.Context(), cfg.Server.Addr)
		},
	}
	serve.Flags().String("http-addr", "", "listen address (default :8080)")
	harvestFlags(serve.Flags())

	root.AddCommand(collect, export, serve)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func harvestFlags(f *pflag.FlagSet) {
	f.String("llm-url", "", "chat completions endpoint URL")
	f.String("api-token", "", "bearer token for the LLM endpoint")
	f.String("model", "", "LLM model name")
	f.Int("year", 0, "publication year to search (default current year)")
	f.Bool("browser", false, "render the listing in Chrome instead of a plain HTTP fetch")
	f.String("driver-path", "", "path to a pre-downloaded Chrome/Chromium binary (browser mode)")
	f.Bool("no-headless", false, "show the browser window (browser mode)")
	f.String("mirror-dsn", "", "also insert new advisories into this MySQL DSN")
	f.String("nats-url", "", "announce new advisories on this NATS server")
	f.String("metrics-file", "", "write Prometheus metrics to this textfile")
}

func runCollect(ctx context.Context, cfg *config.Config, log *zap.Logger) (*task.Run, error) {
	m := metrics.New()
	run, err := harvestWith(ctx, cfg, log, m)
	if cfg.Metrics.File != "" {
		if werr := m.WriteTextfile(cfg.Metrics.File); werr != nil {
			log.Warn("cannot write metrics textfile", zap.String("path", cfg.Metrics.File), zap.Error(werr))
		}
	}
	return run, err
}

func harvestWith(ctx context.Context, cfg *config.Config, log *zap.Logger, m *metrics.Harvest) (*task.Run, error) {
	h := &collector.Harvester{
		Store:   store.NewFileStore(cfg.Store.Path, log),
		Details: collector.NewDetailFetcher(cfg.Detail.Timeout, log),
		Summarizer: summarizer.New(summarizer.Config{
			Endpoint: cfg.LLM.URL,
			Token:    cfg.LLM.Token,
			Model:    cfg.LLM.Model,
			Language: cfg.LLM.Language,
			Timeout:  cfg.LLM.Timeout,
		}, log),
		Reporter: result.NewExporter(cfg.Report.Dir, cfg.Report.PDF, log),
		Topic:    cfg.Notify.Subject,
		Metrics:  m,
		Pace:     cfg.Pace,
		Logger:   log,
	}

	if cfg.Browser.Enabled {
		bl := collector.NewBrowserListing(cfg.Listing.URL, cfg.Browser.DriverPath, cfg.Browser.Headless, log)
		if cfg.Browser.Settle > 0 {
			bl.Settle = cfg.Browser.Settle
		}
		bl.DebugFile = cfg.Debug.File
		h.Listing = bl
	} else {
		sl := collector.NewStaticListing(cfg.Listing.URL, cfg.Listing.Timeout, log)
		sl.DebugFile = cfg.Debug.File
		h.Listing = sl
	}

	if cfg.Mirror.DSN != "" {
		mirror, err := store.OpenMirror(ctx, cfg.Mirror.Driver, cfg.Mirror.DSN)
		if err != nil {
			log.Warn("mirror unavailable, continuing without it", zap.String("driver", cfg.Mirror.Driver), zap.Error(err))
		} else {
			defer mirror.Close()
			h.Mirror = mirror
		}
	}

	if cfg.Notify.NATSURL != "" {
		pub, err := mq.NewNATS(cfg.Notify.NATSURL)
		if err != nil {
			log.Warn("nats unavailable, continuing without events", zap.String("url", cfg.Notify.NATSURL), zap.Error(err))
		} else {
			defer pub.Close()
			h.Publisher = pub
		}
	}

	return h.Run(ctx, collector.Scope{
		Year:    cfg.Listing.Year,
		Product: cfg.Listing.Product,
		Rows:    cfg.Listing.Rows,
	})
}
