package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/metrics"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/viewer"
	"github.com/e-intern-tkondo-wq/auto-log-management/pkg/config"
)

var (
	serveAddr        string
	serveMetricsAddr string
	serveNoNotify    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the alert viewer and deliver notifications",
	Long: `Run the read-only viewer (/health, /api/v1/alerts, /api/v1/records,
/api/v1/templates, /view), deliver pending alerts periodically and expose
Prometheus metrics when metrics.address is set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveAddr, "address", "a", "", "viewer listen address (overrides viewer.address)")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-address", "", "metrics listen address (overrides metrics.address)")
	serveCmd.Flags().BoolVar(&serveNoNotify, "no-notify", false, "do not deliver alerts")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Viewer.Address = serveAddr
	}
	if serveMetricsAddr != "" {
		cfg.Metrics.Address = serveMetricsAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	view, err := viewer.New(&viewer.Config{Address: cfg.Viewer.Address, Verbose: verbose}, st, logger.Named("viewer"))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return view.Run(ctx)
	})

	if !serveNoNotify {
		d, err := newDispatcher(st)
		if err != nil {
			return err
		}
		defer d.Close()
		g.Go(func() error {
			return d.Run(ctx, cfg.NotifyInterval(), cfg.Notify.BatchSize)
		})
	}

	if cfg.Metrics.Address != "" {
		ms := metrics.NewServer(cfg.Metrics.Address, logger.Named("metrics"))
		g.Go(func() error {
			return ms.Run(ctx)
		})
	}

	logger.Info("logmon serving",
		zap.String("viewer", cfg.Viewer.Address),
		zap.String("metrics", cfg.Metrics.Address),
		zap.Bool("notify", !serveNoNotify))

	return g.Wait()
}
