package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/opcore/driver"
	"github.com/wippyai/opcore/runtime"
)

func newRunCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a synthetic workload",
		Long: `Submit a batch of synthetic operations across several realms and run the host
loop until every referenced operation is delivered.

Example:
  opctl run --ops 500 --realms 4 --pool-size 16
  opctl run --interactive --max-delay 2s
  OPCORE_FAIL_RATE=0.3 opctl run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorkload(cmd.Context(), root)
		},
	}

	f := cmd.Flags()
	f.Int("ops", 200, "number of operations to submit")
	f.Int("realms", 2, "worker realms besides main")
	f.Int("pool-size", 8, "concurrent native operations")
	f.Duration("max-delay", 50*time.Millisecond, "upper bound of simulated operation latency")
	f.Float64("fail-rate", 0.1, "probability that an operation fails")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	f.BoolP("interactive", "i", false, "live monitor of pending operations")
	return cmd
}

func loadConfig(root *rootOptions) (workloadConfig, error) {
	v := root.v
	cfg := workloadConfig{
		Ops:      v.GetInt("ops"),
		Realms:   v.GetInt("realms"),
		PoolSize: v.GetInt("pool-size"),
		MaxDelay: v.GetDuration("max-delay"),
		FailRate: v.GetFloat64("fail-rate"),
	}
	return cfg, cfg.validate()
}

func runWorkload(ctx context.Context, root *rootOptions) (err error) {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	interactive := root.v.GetBool("interactive")
	if interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("--interactive needs a terminal")
	}

	logger, err := root.logger(interactive)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	pool := driver.NewPool(cfg.PoolSize)
	pool.SetLogger(logger.Named("pool"))

	w := newWorkload(cfg, pool, logger)
	rt, err := runtime.New(
		runtime.WithLogger(logger),
		runtime.WithMetrics(reg),
		runtime.WithPool(pool),
		runtime.WithMainTable(w.table),
	)
	if err != nil {
		return err
	}

	var srv *http.Server
	if addr := root.v.GetString("metrics-addr"); addr != "" {
		srv = &http.Server{Addr: addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if serr := srv.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(serr))
			}
		}()
	}

	defer func() {
		err = multierr.Append(err, rt.Close())
		if srv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err = multierr.Append(err, srv.Shutdown(sctx))
		}
	}()

	if interactive {
		return runInteractive(ctx, rt, w)
	}

	report, err := w.Run(ctx, rt)
	if err != nil {
		return err
	}
	fmt.Print(report.String())
	return nil
}
