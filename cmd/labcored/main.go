// labcored is the lab notebook backend server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/echa/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"labcore/internal/adapters/api"
	"labcore/internal/adapters/exports"
	"labcore/internal/blob"
	"labcore/internal/core"
)

var (
	flags   = flag.NewFlagSet("labcored", flag.ContinueOnError)
	verbose bool
	vdebug  bool
	seed    bool
)

func init() {
	flags.Usage = func() {}
	flags.BoolVar(&verbose, "v", false, "be verbose")
	flags.BoolVar(&vdebug, "vv", false, "debug mode")
	flags.BoolVar(&seed, "seed", false, "install demo data when the store is empty")

	config.SetEnvPrefix("LABCORE")
	config.SetDefault("server.addr", "127.0.0.1")
	config.SetDefault("server.port", 8000)
	config.SetDefault("server.read_timeout", 5*time.Second)
	config.SetDefault("server.write_timeout", 15*time.Second)
	config.SetDefault("server.shutdown_timeout", 10*time.Second)
	config.SetDefault("log.level", "info")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			fmt.Println("Usage: labcored [flags]")
			flags.PrintDefaults()
			return nil
		}
		return err
	}
	initLogging()

	engine := core.NewDefaultRulesEngine()
	store, err := core.OpenPersistentStore(engine)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	registry := prometheus.NewRegistry()
	svc := core.NewService(store,
		core.WithMetricsRecorder(core.NewPrometheusMetricsRecorder(registry)),
		core.WithTracer(core.NewJSONTracer(nil)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if seed {
		if err := core.Seed(ctx, svc); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	blobStore, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	worker := exports.NewWorker(svc, blobStore)
	worker.Start()

	router := api.NewHandler(svc, worker).Router()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", config.GetString("server.addr"), config.GetInt("server.port"))
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  config.GetDuration("server.read_timeout"),
		WriteTimeout: config.GetDuration("server.write_timeout"),
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration("server.shutdown_timeout"))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http shutdown: %v", err)
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		log.Warnf("export worker shutdown: %v", err)
	}
	return nil
}
