// Command authority runs the Grid Clash authoritative UDP server: the
// canonical grid, the tick loop, and the debug/metrics HTTP surface.
// See SPEC_FULL.md §2.2.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gridclash/internal/api"
	"gridclash/internal/authority"
	"gridclash/internal/config"
	"gridclash/internal/metrics"
)

func promHandler(reg *metrics.PromRegistry) http.Handler {
	return promhttp.HandlerFor(reg.Registry(), promhttp.HandlerOpts{})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New("GRIDCLASH")

	cmd := &cobra.Command{
		Use:   "authority",
		Short: "Run the Grid Clash authoritative server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAuthorityConfig(v)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	cfgFile := cmd.PersistentFlags().String("config", "", "path to a config file (YAML/JSON/TOML)")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if *cfgFile != "" {
			v.SetConfigFile(*cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config file: %w", err)
			}
		}
		return nil
	}

	config.BindAuthorityFlags(cmd, v)
	return cmd
}

func run(parentCtx context.Context, cfg config.AuthorityConfig) error {
	runID := uuid.NewString()
	log := logrus.WithField("run_id", runID)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	promReg := metrics.NewPromRegistry()
	recorder := metrics.New(runID, log, metrics.WithPrometheus(promReg))

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.Port})
	if err != nil {
		return fmt.Errorf("listen udp :%d: %w", cfg.Port, err)
	}
	log.WithField("port", cfg.Port).Info("authority listening")

	authCfg := authority.Config{
		Rows:               cfg.Rows,
		Cols:               cfg.Cols,
		TickRateHz:         cfg.TickRateHz,
		HeartbeatThreshold: cfg.HeartbeatThreshold,
		RetransmitDepth:    cfg.RetransmitDepth,
		PositionLogDepth:   500,
		MetricsDir:         cfg.MetricsDir,
	}
	auth := authority.New(authCfg, conn, recorder, log)

	httpSrv := api.New(auth, promHandler(promReg), log)
	apiAddr := fmt.Sprintf(":%d", cfg.APIPort)

	errCh := make(chan error, 2)
	go func() {
		if err := httpSrv.Run(ctx, apiAddr); err != nil {
			errCh <- fmt.Errorf("debug http server: %w", err)
		}
	}()
	go func() {
		errCh <- auth.Run(ctx)
	}()

	select {
	case <-auth.Done():
		log.Info("session ended, shutting down")
	case <-ctx.Done():
		log.Info("interrupted, shutting down")
		_ = auth.Shutdown()
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("fatal error")
			return err
		}
	}

	return nil
}
