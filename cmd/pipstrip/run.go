package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pipstrip/pipstrip/internal/admin"
	"github.com/pipstrip/pipstrip/internal/config"
	"github.com/pipstrip/pipstrip/internal/extproc"
	"github.com/pipstrip/pipstrip/internal/gateway"
	"github.com/pipstrip/pipstrip/internal/logging"
	"github.com/pipstrip/pipstrip/internal/observability"
	"github.com/pipstrip/pipstrip/internal/rewrite"
	"github.com/pipstrip/pipstrip/internal/toggle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipstrip gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runGateway(cmd.Context(), configPath, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	return cmd
}

func newExtProcCmd() *cobra.Command {
	var configPath string
	var listen string

	cmd := &cobra.Command{
		Use:   "extproc",
		Short: "Run only the Envoy external processor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.ExtProc.Listen = listen
			}
			return runExtProc(cmd.Context(), configPath, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&listen, "listen", "", "Override extProc.listen")

	return cmd
}

// runtime holds what the gateway and the external processor share.
type runtime struct {
	cfg        *config.Config
	configPath string
	log        zerolog.Logger

	events  *logging.RewriteLogger
	metrics *observability.Metrics
	reg     *prometheus.Registry
	machine *toggle.Machine

	closers []func() error
}

func newRuntime(configPath string, cfg *config.Config) (*runtime, error) {
	rt := &runtime{
		cfg:        cfg,
		configPath: configPath,
		log:        logging.New(cfg.Logging, os.Stderr),
	}

	if cfg.Logging.RewriteLog != "" {
		events, closer, err := logging.OpenRewriteLog(cfg.ResolvePath(cfg.Logging.RewriteLog))
		if err != nil {
			return nil, err
		}
		rt.events = events
		rt.closers = append(rt.closers, closer)
	}

	if cfg.Metrics.Enabled {
		rt.reg = prometheus.NewRegistry()
		rt.metrics = observability.NewMetrics(rt.reg)
	}

	return rt, nil
}

func (rt *runtime) close() {
	for _, closer := range rt.closers {
		if err := closer(); err != nil {
			rt.log.Warn().Err(err).Msg("close failed")
		}
	}
}

// watch drives the machine from the config file until ctx is done.
func (rt *runtime) watch(ctx context.Context, targets ...toggle.Interceptor) <-chan error {
	rt.machine = toggle.NewMachine(rt.log, targets...)
	rt.machine.OnTransition(func(_, to toggle.State) {
		rt.metrics.SetAttached(to == toggle.Attached)
	})

	src := config.NewFileSource(rt.configPath, rt.cfg.Watch.Interval, rt.log)
	src.OnReload = rt.metrics.ObserveReload

	errCh := make(chan error, 1)
	go func() {
		errCh <- toggle.Run(ctx, src, rt.machine)
	}()
	return errCh
}

func (rt *runtime) startAdmin(serverErr chan<- error) *http.Server {
	if !rt.cfg.Admin.Enabled {
		return nil
	}

	var metricsHandler http.Handler
	if rt.metrics != nil {
		metricsHandler = rt.metrics.Handler(rt.reg)
	}

	srv := &http.Server{
		Addr:              rt.cfg.Admin.Listen,
		Handler:           admin.NewRouter(rt.machine, metricsHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		rt.log.Info().Str("addr", srv.Addr).Msg("admin server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	return srv
}

func (rt *runtime) newExtProcServer() *extproc.Server {
	srv := extproc.New(rewrite.New(rt.cfg.Rewrite.BlockedFeature), rt.cfg.Rewrite.IsTopLevelOnly(), rt.log)
	srv.SetRewriteLogger(rt.events)
	srv.SetMetrics(rt.metrics)
	return srv
}

func runGateway(ctx context.Context, configPath string, cfg *config.Config) error {
	rt, err := newRuntime(configPath, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	gw, err := gateway.New(cfg, rt.log)
	if err != nil {
		return err
	}
	gw.SetRewriteLogger(rt.events)
	gw.SetMetrics(rt.metrics)

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	targets := []toggle.Interceptor{gw}
	var ep *extproc.Server
	if cfg.ExtProc.Enabled {
		ep = rt.newExtProcServer()
		targets = append(targets, ep)
	}
	watchErr := rt.watch(signalCtx, targets...)

	serverErr := make(chan error, 3)
	adminSrv := rt.startAdmin(serverErr)

	if ep != nil {
		go func() {
			if err := ep.ListenAndServe(signalCtx, cfg.ExtProc.Listen); err != nil {
				serverErr <- err
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           gw,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		rt.log.Info().Str("addr", srv.Addr).Msg("gateway listening")
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.ResolvePath(cfg.Server.TLS.CertFile), cfg.ResolvePath(cfg.Server.TLS.KeyFile))
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-signalCtx.Done():
	case runErr = <-serverErr:
	case runErr = <-watchErr:
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if adminSrv != nil {
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			rt.log.Warn().Err(err).Msg("admin shutdown")
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}

	return runErr
}

func runExtProc(ctx context.Context, configPath string, cfg *config.Config) error {
	rt, err := newRuntime(configPath, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ep := rt.newExtProcServer()
	watchErr := rt.watch(signalCtx, ep)

	serverErr := make(chan error, 2)
	adminSrv := rt.startAdmin(serverErr)
	go func() {
		if err := ep.ListenAndServe(signalCtx, cfg.ExtProc.Listen); err != nil {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-signalCtx.Done():
	case runErr = <-serverErr:
	case runErr = <-watchErr:
	}
	stop()

	if adminSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			rt.log.Warn().Err(err).Msg("admin shutdown")
		}
	}

	return runErr
}
