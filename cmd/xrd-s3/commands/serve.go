package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cern-eos/xrdgojs3/internal/logger"
	"github.com/cern-eos/xrdgojs3/internal/s3core/auth"
	"github.com/cern-eos/xrdgojs3/internal/s3core/auth/directory"
	s3config "github.com/cern-eos/xrdgojs3/internal/s3core/config"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store/bucket"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store/multipart"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store/objmeta"
	"github.com/cern-eos/xrdgojs3/internal/telemetry"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the S3 gateway HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := logger.Init(logger.Config{Level: "INFO", Format: "text", Output: "stdout"}); err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	log := logger.With("component", "xrd-s3")

	cfg, err := s3config.Load(s3Opts())
	if err != nil {
		return err
	}
	setTraceLevel(string(cfg.Trace))

	if endpoint := os.Getenv("XRD_S3_PYROSCOPE"); endpoint != "" {
		shutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
			Enabled:        true,
			ServiceName:    "xrd-s3",
			ServiceVersion: "dev",
			Endpoint:       endpoint,
		})
		if err != nil {
			log.Warn("profiling init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	dirCfg := directoryConfig()
	dirCfg.ApplyDefaults()
	dir, err := directory.New(&dirCfg)
	if err != nil {
		return fmt.Errorf("directory: %w", err)
	}

	meta, err := objmeta.Open(filepath.Join(cfg.ConfigDir, "objmeta"))
	if err != nil {
		return fmt.Errorf("objmeta: %w", err)
	}
	defer meta.Close()

	mp := multipart.New(cfg.Multipart, meta)
	layout := bucket.Layout{
		VMP:         cfg.VMP,
		UserMapRoot: filepath.Join(cfg.ConfigDir, "usermap"),
		MTPURoot:    cfg.Multipart,
	}
	st := store.New(layout, dir, meta, mp)
	authn := auth.New(dir, cfg.Region, cfg.Service)

	srv := newServer(st, authn, log)

	reg := prometheus.NewRegistry()
	reqMetrics := newRequestMetrics(reg)

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.Timeout(60 * time.Second))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Mount("/", reqMetrics.wrap(srv.router()))

	httpSrv := &http.Server{Addr: serveAddr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info("listening", "addr", serveAddr, "vmp", cfg.VMP)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	log.Info("stopped")
	return nil
}
