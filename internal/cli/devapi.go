package cli

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/config"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/devapi"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/logging"
)

var devapiCmd = &cobra.Command{
	Use:   "devapi",
	Short: "Run a local analytics backend with demo data",
	Long: `Run a stand-in for the analytics backend REST API.

Data lives in a libsql database (PULSEMETRIC_DEVAPI_DATABASE_URL, or a file in
the XDG data directory). An empty database is seeded with two demo apps.

Examples:
  pulsemetric devapi                 # Listen on :8081
  pulsemetric devapi --addr :9000    # Listen on :9000
  pulsemetric devapi --no-seed       # Start with an empty database`,
	Args: cobra.NoArgs,
	RunE: runDevAPI,
}

var (
	devapiAddr   string
	devapiNoSeed bool
)

func init() {
	devapiCmd.Flags().StringVarP(&devapiAddr, "addr", "a", "", "Address to listen on (overrides PULSEMETRIC_DEVAPI_ADDR)")
	devapiCmd.Flags().BoolVar(&devapiNoSeed, "no-seed", false, "Do not seed an empty database")
}

func runDevAPI(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadDev()
	if err != nil {
		return err
	}
	if devapiAddr != "" {
		cfg.DevAPI.Addr = devapiAddr
	}
	if devapiNoSeed {
		cfg.DevAPI.Seed = false
	}

	log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, closeDB, err := newDevAPI(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB()
	return srv.Start(ctx, cfg.DevAPI.Addr)
}

// newDevAPI opens and migrates the devapi database, seeds it when configured
// and returns the server with a func that closes the database.
func newDevAPI(ctx context.Context, cfg *config.Dev, log logrus.FieldLogger) (*devapi.Server, func(), error) {
	db, err := devapi.Open(ctx, cfg.DevAPI.DatabaseURL, log)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("closing devapi database")
		}
	}

	store := devapi.NewStore(db, nil)
	if cfg.DevAPI.Seed {
		seeded, err := devapi.Seed(ctx, db, store.Now(), devapi.DefaultSeedOptions())
		if err != nil {
			closeDB()
			return nil, nil, err
		}
		if seeded {
			log.Info("seeded devapi database with demo apps")
		}
	}
	return devapi.NewServer(store, log), closeDB, nil
}

// localAddr turns a listen address such as ":8081" into one a client on the
// same host can dial.
func localAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
