// Command observer runs a Grid Clash client: handshake, receive/apply/
// ack loop, optional scripted auto-play, and a per-session metrics CSV.
// See SPEC_FULL.md §2.2 and spec.md §6.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gridclash/internal/config"
	"gridclash/internal/metrics"
	"gridclash/internal/observer"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New("GRIDCLASH")

	cmd := &cobra.Command{
		Use:   "observer",
		Short: "Connect to a Grid Clash authority and play (or just watch)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadObserverConfig(v)
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

	config.BindObserverFlags(cmd, v)
	return cmd
}

func run(parentCtx context.Context, cfg config.ObserverConfig) error {
	runID := uuid.NewString()
	log := logrus.WithField("run_id", runID)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx := parentCtx
	if cfg.DurationSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.DurationSec)*time.Second)
		defer cancel()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.Server, cfg.Port))
	if err != nil {
		return fmt.Errorf("resolve server address: %w", err)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return fmt.Errorf("open udp socket: %w", err)
	}

	recorder := metrics.New(runID, log)
	obsCfg := observer.DefaultConfig()
	obsCfg.ClientID = cfg.ClientID

	obs := observer.New(obsCfg, conn, serverAddr, recorder, log)
	defer obs.Close()

	go obs.ReceiveLoop(ctx)

	if err := obs.Connect(ctx); err != nil {
		log.WithError(err).Error("connection failed")
		return err
	}
	log.Info("connected")

	if !cfg.NoAutoPlay {
		player := observer.NewAutoPlayer(observer.DefaultAutoPlayerConfig(obsCfg.Rows, obsCfg.Cols), obs)
		go player.Run(ctx)
	}

	// With no duration limit (0), the session ends at GAME_OVER.
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()
	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case <-poll.C:
			done = cfg.DurationSec == 0 && obs.SnapshotView().Status == observer.StatusGameOver
		}
	}

	suffix := metrics.TimestampSuffix(time.Now())
	path, err := recorder.WriteGameMetrics(cfg.Output, suffix)
	if err != nil {
		log.WithError(err).Error("failed to write metrics csv")
		return err
	}
	log.WithField("path", path).Info("wrote metrics csv")

	return nil
}
