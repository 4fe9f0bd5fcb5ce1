package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dshills/rewind/internal/config"
	"github.com/dshills/rewind/internal/demo"
)

type rootOptions struct {
	configPath  string
	logLevel    string
	debug       bool
	watch       bool
	metricsAddr string

	// debugSet records that --debug was given, so reloads keep it.
	debugSet bool
}

// environment is a configured session plus the services around it.
type environment struct {
	cfg     *config.Config
	logger  *slog.Logger
	session *demo.Session
	watcher *config.Watcher
	server  *http.Server
}

// loadConfig layers defaults, the config file, REWIND_* variables and the
// flags the user set, in that order.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(config.DefaultEnvPrefix); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	o.debugSet = flags.Changed("debug")
	if o.debugSet {
		cfg.Debug = o.debug
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// open builds the session described by the flags. Logs go to the
// command's error output.
func (o *rootOptions) open(cmd *cobra.Command) (*environment, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	env := &environment{
		cfg:    cfg,
		logger: newLogger(level, cmd.ErrOrStderr()),
	}

	opts := []demo.Option{demo.WithLogger(env.logger)}
	var reg *prometheus.Registry
	if cfg.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, demo.WithRegisterer(reg))
	}

	env.session, err = demo.NewSession(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if reg != nil {
		env.server = serveMetrics(cfg.MetricsAddr, reg, env.logger)
	}
	return env, nil
}

// startWatch starts reloading the config file. schedule must run the given
// func on the goroutine that owns the session.
func (o *rootOptions) startWatch(env *environment, schedule func(func())) error {
	if !o.watch {
		return nil
	}
	if o.configPath == "" {
		return errors.New("--watch needs --config")
	}

	w, err := config.NewWatcher(o.configPath, func(cfg *config.Config, err error) {
		if err != nil {
			env.logger.Warn("config reload failed", "path", o.configPath, "error", err)
			return
		}
		if o.debugSet {
			cfg.Debug = o.debug
		}
		schedule(func() {
			if err := env.session.Apply(cfg); err != nil {
				env.logger.Warn("config not applied", "error", err)
			}
		})
	}, config.WithEnvPrefix(config.DefaultEnvPrefix))
	if err != nil {
		return fmt.Errorf("watching config: %w", err)
	}
	env.watcher = w
	env.logger.Debug("watching config", "path", o.configPath)
	return nil
}

func (e *environment) Close() error {
	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	if e.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, e.server.Shutdown(ctx))
		cancel()
	}
	errs = append(errs, e.session.Close())
	return errors.Join(errs...)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}
