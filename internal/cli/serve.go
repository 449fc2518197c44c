package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/adapters/otel"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/config"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/dashboard"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/logging"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/querycache"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web dashboard",
	Long: `Start the dashboard server.

Configuration comes from PULSEMETRIC_* environment variables; flags override
the listen address.

Examples:
  pulsemetric serve                  # Listen on :8080
  pulsemetric serve --addr :3000     # Listen on :3000
  pulsemetric serve --dev            # Also run the demo backend in-process`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr string
	serveDev  bool
)

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Address to listen on (overrides PULSEMETRIC_ADDR)")
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "Run the demo backend in the same process and point the dashboard at it")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadServe()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if serveDev {
		dev, err := config.LoadDev()
		if err != nil {
			return err
		}
		srv, closeDB, err := newDevAPI(ctx, dev, log)
		if err != nil {
			return err
		}
		defer closeDB()
		cfg.API.BaseURL = "http://" + localAddr(dev.DevAPI.Addr) + "/api"
		g.Go(func() error { return srv.Start(ctx, dev.DevAPI.Addr) })
	}

	metrics := otel.New(ctx, otel.Config{
		Enabled:        cfg.OTel.Enabled,
		Endpoint:       cfg.OTel.Endpoint,
		Insecure:       cfg.OTel.Insecure,
		ServiceVersion: Version,
	}, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Close(shutdownCtx); err != nil {
			log.WithError(err).Warn("flushing metrics")
		}
	}()

	server, cache, err := newDashboard(ctx, cfg, log, metrics)
	if err != nil {
		return err
	}
	defer cache.Close()

	g.Go(func() error { return server.Start(ctx) })
	return g.Wait()
}

// newDashboard wires the backend client, query cache and dashboard service
// into a web server.
func newDashboard(ctx context.Context, cfg *config.Serve, log logrus.FieldLogger, metrics otel.Metrics) (*web.Server, *querycache.Cache, error) {
	client := apiclient.New(apiclient.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		APIKey:  cfg.API.Key,
	})

	cache, err := querycache.New(querycache.Config{
		GCTime:    cfg.Cache.GCTime,
		Retries:   cfg.Cache.Retries,
		Retryable: apiclient.IsRetryable,
		Logger:    log,
		Meter:     metrics.Meter(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating query cache: %w", err)
	}
	cache.StartJanitor(ctx)

	svc := dashboard.NewService(ctx, client, cache, dashboard.Options{
		PollInterval: cfg.Cache.RealtimePollInterval,
		Logger:       log,
	})

	server, err := web.NewServer(web.Config{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		DefaultPageSize: cfg.Server.DefaultPageSize,
		PollSeconds:     int(cfg.Cache.RealtimePollInterval / time.Second),
	}, svc, web.Options{
		Logger: log,
		Meter:  metrics.Meter(),
	})
	if err != nil {
		cache.Close()
		return nil, nil, fmt.Errorf("creating web server: %w", err)
	}
	return server, cache, nil
}
