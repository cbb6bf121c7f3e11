package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"hve/internal/config"
	"hve/internal/domain"
	"hve/internal/market"
	"hve/internal/mode"
	"hve/internal/notify"
	"hve/internal/reconcile"
	"hve/internal/store"
	"hve/internal/util"
)

// argDateLayout is the CLI date format for historical mode, e.g. 09-16-2025.
const argDateLayout = "01-02-2006"

func main() {
	flag.Usage = usage
	flag.Parse()

	// Credentials may live in a .env next to the binary.
	godotenv.Load()

	cfgPath := "config/hve.yaml"
	if p := os.Getenv("HVE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var cutoff *time.Time
	switch args := flag.Args(); len(args) {
	case 0:
	case 2:
		if args[0] != "historical" {
			usage()
			os.Exit(2)
		}
		d, err := time.Parse(argDateLayout, args[1])
		if err != nil {
			log.Fatalf("invalid cutoff date %q (want MM-DD-YYYY): %v", args[1], err)
		}
		d = domain.DateOf(d, time.UTC)
		cutoff = &d
	default:
		usage()
		os.Exit(2)
	}

	// Dual logger: stdout + dated log file.
	logDir := cfg.Storage.LogDir
	if logDir == "" {
		logDir = "/tmp"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Fatalf("failed to create log dir: %v", err)
	}
	logPath := filepath.Join(logDir, fmt.Sprintf("hve-%s.log", time.Now().Format("2006-01-02")))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	util.SetDefault(util.NewLogger(w, cfg.Logging.Level, cfg.Logging.Format))

	if cfg.Polygon.APIKey == "" {
		log.Fatal("POLYGON_API_KEY is not set")
	}

	recordStore, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		log.Fatalf("failed to open record store: %v", err)
	}
	defer recordStore.Close()

	provider := market.NewPolygonProvider(cfg.Polygon.APIKey, cfg.Polygon.RateLimitPerMin)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Email.Enabled {
		notifier = notify.NewMailer(cfg.Email)
	}

	earliest, err := time.Parse(domain.DateLayout, cfg.Reconcile.EarliestDate)
	if err != nil {
		log.Fatalf("invalid reconcile.earliest_date %q: %v", cfg.Reconcile.EarliestDate, err)
	}

	sel := &mode.Selector{
		Pass: &reconcile.Pass{
			Provider:  provider,
			Store:     recordStore,
			Engine:    reconcile.NewEngine(provider, recordStore, earliest, cfg.Polygon.MaxRetries),
			Scheduler: reconcile.NewScheduler(cfg.Reconcile.Workers, cfg.Reconcile.IOFactor),
			CacheDir:  filepath.Dir(cfg.Storage.DBPath),
		},
		Store:          recordStore,
		Provider:       provider,
		Notifier:       notifier,
		OutputDir:      cfg.Storage.OutputDir,
		MaxSetupRounds: cfg.Reconcile.MaxSetupRounds,
		CheckInterval:  time.Duration(cfg.Realtime.CheckIntervalMin) * time.Minute,
		Heartbeat:      time.Duration(cfg.Realtime.HeartbeatSec) * time.Second,
		Progress:       consoleProgress(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if stats, err := recordStore.Stats(ctx); err == nil {
		slog.Info("starting volume monitor", "db", cfg.Storage.DBPath,
			"symbols", stats.Symbols, "logFile", logPath)
	}

	if cutoff != nil {
		err = sel.RunHistorical(ctx, *cutoff)
	} else {
		err = sel.RunRealtime(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("monitor failed", "err", err)
		if nerr := notifier.Failure(err); nerr != nil {
			slog.Warn("failure notification not sent", "err", nerr)
		}
		os.Exit(1)
	}
	slog.Info("done")
}

// consoleProgress renders reconciliation progress on stderr. The bar is
// created on the first callback, once the symbol count is known.
func consoleProgress() func(done, total int) {
	var mu sync.Mutex
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("reconciling"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionThrottle(200*time.Millisecond),
			)
		}
		bar.Set(done)
		if done == total {
			bar.Finish()
			bar = nil
		}
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  %[1]s                       run realtime monitoring (setup first if stale)
  %[1]s historical MM-DD-YYYY report records on or after the cutoff date
`, filepath.Base(os.Args[0]))
	flag.PrintDefaults()
}
