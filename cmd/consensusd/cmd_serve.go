package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"consensus-engine/binlog"
	"consensus-engine/config"
	"consensus-engine/control"
	"consensus-engine/logging"
	"consensus-engine/server"
	"consensus-engine/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer simulator snapshots over UDP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := serve(ctx, cfg, logger); err != nil {
			logging.Fatal(logger, err, "serve failed")
		}
		return nil
	},
}

// newBridge wires the pipeline, recorder and web hub described by cfg. The
// returned cleanup closes the recorder.
func newBridge(cfg config.Config, logger logr.Logger, hub *web.Hub) (*server.Bridge, func(), error) {
	pl, err := control.NewPipeline(cfg.Controller.Law, cfg.ControllerParams(),
		control.WithParallelism(cfg.Controller.Parallelism),
		control.WithLogger(logger.WithName("control")))
	if err != nil {
		return nil, nil, err
	}
	bridge := server.NewBridge(pl, logger.WithName("bridge"))
	bridge.SetTickDuration(cfg.Fleet.TickDuration)
	if hub != nil {
		bridge.SetWebHub(hub)
	}
	cleanup := func() {}
	if cfg.Server.Record != "" {
		path := recordPath(cfg.Server.Record)
		w, err := binlog.Create(path)
		if err != nil {
			return nil, nil, fmt.Errorf("create recording: %w", err)
		}
		if err := bridge.SetRecorder(w); err != nil {
			w.Close()
			return nil, nil, err
		}
		logger.Info("recording", "path", path)
		cleanup = func() { w.Close() }
	}
	return bridge, cleanup, nil
}

// recordPath names a new file inside path when path is a directory.
func recordPath(path string) string {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return filepath.Join(path, fmt.Sprintf("TICKS_%s.pcap", time.Now().Format("20060102150405")))
	}
	return path
}

func serve(ctx context.Context, cfg config.Config, logger logr.Logger) error {
	var webSvr *web.Server
	var hub *web.Hub
	if cfg.Server.HTTPPort > 0 {
		hub = web.NewHub(cfg.Server.BroadcastHz, logger.WithName("hub"))
		webSvr = web.NewServer(hub, logger.WithName("web"))
	}
	bridge, cleanup, err := newBridge(cfg, logger, hub)
	if err != nil {
		return err
	}
	defer cleanup()

	udpSvr, err := server.NewUdpServer(cfg.Server.UDPPort, bridge, logger.WithName("udp"))
	if err != nil {
		return fmt.Errorf("create UDP server: %w", err)
	}
	logger.Info("serving", "law", cfg.Controller.Law, "udp", udpSvr.LocalAddr().String(),
		"http", cfg.Server.HTTPPort, "run", bridge.Run().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return udpSvr.Start(ctx) })
	if webSvr != nil {
		g.Go(func() error { return webSvr.Start(cfg.Server.HTTPPort) })
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return webSvr.Shutdown(shutdownCtx)
		})
	}
	err = g.Wait()
	logger.Info("shut down", "lastTick", bridge.Last().Tick)
	return err
}
