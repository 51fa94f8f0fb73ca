package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"apartments-scraper/config"
	"apartments-scraper/reference"
	"apartments-scraper/routing"
	"apartments-scraper/scraper/yad2"
	"apartments-scraper/services"
	"apartments-scraper/storage"
	"apartments-scraper/utils"
)

var (
	cfg    *config.Config
	logger *utils.Logger
)

var rootCmd = &cobra.Command{
	Use:   "apartments-scraper",
	Short: "Rental listings scraper with neighborhood stats and nearest-station walking distances",
	Long: "Fetches rental listings for every neighborhood in the reference table, builds per-neighborhood " +
		"price statistics, and finds the nearest rail station by walking distance for each listing.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		applyFlags(cmd, cfg)
		logger = utils.NewLoggerWith(utils.LoggerOptions{
			Writer:  os.Stderr,
			Level:   cfg.LogLevel,
			NoColor: cfg.LogNoColor,
		})
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, logger)
	},
}

func init() {
	f := rootCmd.Flags()
	f.String("neighborhoods", "", "neighborhood reference table (.csv or .xlsx)")
	f.String("stations", "", "station reference table (.csv or .xlsx)")
	f.String("out", "", "output directory")
	f.String("store", "", "database sink: none, postgres or sqlite")
	f.Bool("dedupe", false, "keep only the first observation of each listing token")
}

// applyFlags lets explicitly set flags override the environment.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("neighborhoods") {
		c.NeighborhoodsPath, _ = f.GetString("neighborhoods")
	}
	if f.Changed("stations") {
		c.StationsPath, _ = f.GetString("stations")
	}
	if f.Changed("out") {
		c.OutputDir, _ = f.GetString("out")
	}
	if f.Changed("store") {
		c.StoreDriver, _ = f.GetString("store")
	}
	if f.Changed("dedupe") {
		c.DedupeByToken, _ = f.GetBool("dedupe")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
	logger.Info("=== Apartments Scraper starting ===")
	logger.Info("Config: transport=%s | concurrency: %d | routing: %d | rate: %dms | dedupe: %v | store: %s",
		cfg.FeedTransport, cfg.MaxConcurrency, cfg.RoutingConcurrency, cfg.RateLimitMs, cfg.DedupeByToken, cfg.StoreDriver)

	queries, err := reference.LoadAreaQueries(cfg.NeighborhoodsPath)
	if err != nil {
		logger.Error("Failed to load neighborhoods: %v", err)
		return err
	}
	stations, err := reference.LoadStations(cfg.StationsPath)
	if err != nil {
		logger.Error("Failed to load stations: %v", err)
		return err
	}
	logger.Info("Loaded %d area queries and %d stations", len(queries), len(stations))

	sinks, sqlWriter, err := openSinks(cfg)
	if err != nil {
		logger.Error("Failed to open output sinks: %v", err)
		return err
	}
	defer func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}()

	feed, closeFeed, err := newFeedClient(cfg, logger)
	if err != nil {
		logger.Error("Failed to start feed client: %v", err)
		return err
	}
	defer closeFeed()

	router := routing.NewOSRMClient(routing.Options{
		BaseURL:    cfg.RoutingBaseURL,
		Timeout:    cfg.RequestTimeout,
		RatePerSec: cfg.RoutingRatePerSec,
		MaxRetries: cfg.MaxRetries,
		CacheSize:  cfg.RoutingCacheSize,
		Logger:     logger,
	})

	pipeline := services.NewPipeline(services.PipelineOptions{
		Fetcher:    yad2.NewFetcher(feed, cfg.MaxConcurrency, cfg.RateLimitMs, logger),
		Aggregator: services.NewAggregator(cfg.ListingBaseURL, cfg.DedupeByToken, logger),
		Resolver:   services.NewResolver(router, cfg.RoutingConcurrency, logger),
		WalkSpeed:  cfg.WalkSpeedMPerMin,
		Timeout:    cfg.PipelineTimeout,
		Logger:     logger,
	})

	result, err := pipeline.Run(ctx, queries, stations)
	if err != nil {
		logger.Error("Pipeline failed: %v", err)
		return err
	}
	if len(result.Listings) == 0 {
		logger.Warn("No listings were fetched; writing empty tables")
	}

	// Sinks get a fresh context so a run that hit its deadline still saves.
	writeCtx := context.WithoutCancel(ctx)
	var sinkErr error
	for _, s := range sinks {
		if err := s.Write(writeCtx, result.Summary.RunID, result.Listings, result.Stats); err != nil {
			logger.Error("Sink %T write failed: %v", s, err)
			sinkErr = err
		}
	}
	logger.Info("Results written to %s", cfg.OutputDir)

	insightListings := result.Listings
	if sqlWriter != nil && sinkErr == nil {
		stored, err := sqlWriter.FetchListings(writeCtx)
		if err != nil {
			logger.Warn("Failed to read listings back from the database for insights: %v", err)
		} else {
			insightListings = stored
		}
	}

	insightSvc := services.NewInsightService(logger)
	report := insightSvc.Generate(insightListings, result.Stats)
	insightSvc.Print(os.Stdout, result.Summary, report)

	return sinkErr
}

// openSinks builds every configured output. The SQL writer, when enabled, is
// also returned on its own for reading back.
func openSinks(cfg *config.Config) ([]storage.ResultWriter, *storage.SQLWriter, error) {
	var sinks []storage.ResultWriter
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}

	csvWriter, err := storage.NewCSVWriter(cfg.OutputDir)
	if err != nil {
		return nil, nil, err
	}
	sinks = append(sinks, csvWriter)

	if cfg.ExportGeoJSON {
		g, err := storage.NewGeoJSONWriter(cfg.OutputDir)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, g)
	}
	if cfg.ExportShapefile {
		s, err := storage.NewShapefileWriter(cfg.OutputDir)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, s)
	}

	var sqlWriter *storage.SQLWriter
	switch cfg.StoreDriver {
	case "", "none":
	case "postgres":
		sqlWriter, err = storage.NewSQLWriter("postgres", cfg.DSN())
	case "sqlite":
		sqlWriter, err = storage.NewSQLWriter("sqlite", cfg.SQLitePath)
	default:
		err = eris.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if sqlWriter != nil {
		sinks = append(sinks, sqlWriter)
	}
	return sinks, sqlWriter, nil
}

// newFeedClient returns the configured transport and a function releasing it.
func newFeedClient(cfg *config.Config, logger *utils.Logger) (yad2.FeedClient, func(), error) {
	params := yad2.FeedParams{
		BaseURL:  cfg.FeedBaseURL,
		Property: cfg.FeedProperty,
		TopArea:  cfg.FeedTopArea,
	}
	switch cfg.FeedTransport {
	case "", "http":
		return yad2.NewHTTPClient(yad2.HTTPOptions{
			Params:     params,
			Timeout:    cfg.RequestTimeout,
			MaxRetries: cfg.MaxRetries,
			Logger:     logger,
		}), func() {}, nil
	case "browser":
		b, err := yad2.NewBrowserClient(yad2.BrowserOptions{
			Params:     params,
			Timeout:    cfg.RequestTimeout,
			MaxRetries: cfg.MaxRetries,
			ChromeBin:  cfg.ChromeBin,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	default:
		return nil, nil, eris.Errorf("unknown FEED_TRANSPORT %q", cfg.FeedTransport)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var refErr *reference.ReferenceDataError
		if errors.As(err, &refErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
