// Command fakestomp runs an in-process STOMP-over-websocket broker for
// exercising failover clients. It records frames, answers CONNECT and
// receipts, and exposes its counters on a Prometheus endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/simlegate/onstomp/internal/fakebroker"
	"github.com/simlegate/onstomp/stomp/log"
)

func main() {
	if err := newRootCommand(os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fakestomp:", err)
		os.Exit(1)
	}
}

func newRootCommand(logOutput io.Writer) *cobra.Command {
	cfg := DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "fakestomp",
		Short:         "Fake STOMP-over-websocket broker for failover testing",
		Example:       "  fakestomp --addr 127.0.0.1:61614 --log-level debug\n  fakestomp --config fakestomp.toml",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgPath != "" {
				if !FileExists(cfgPath) {
					return fmt.Errorf("config file %s not found", cfgPath)
				}
				fc, err := LoadFileConfig(cfgPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}
			if err := ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			level, err := log.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			logger := log.NewConsoleAdapter(logOutput, level)

			listener, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Addr, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, listener, logger)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to a TOML config file")
	root.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	root.Flags().StringVar(&cfg.Path, "path", cfg.Path, "websocket endpoint path")
	root.Flags().StringVar(&cfg.MetricsPath, "metrics-path", cfg.MetricsPath, "Prometheus endpoint path (empty disables)")
	root.Flags().StringVar(&cfg.ServerName, "server-name", cfg.ServerName, "server header sent in CONNECTED frames")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	return root
}

// run serves the broker on listener until ctx is done.
func run(ctx context.Context, cfg Config, listener net.Listener, logger log.Logger) error {
	broker := fakebroker.New(
		fakebroker.WithLogger(logger),
		fakebroker.WithServerName(cfg.ServerName),
	)

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, broker)
	if cfg.MetricsPath != "" {
		mux.HandleFunc(cfg.MetricsPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; version=0.0.4")
			broker.WritePrometheus(w)
			metrics.WriteProcessMetrics(w)
		})
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()
	logger.Info("fakestomp listening",
		log.String("addr", listener.Addr().String()),
		log.String("path", cfg.Path),
		log.String("metrics_path", cfg.MetricsPath),
	)

	select {
	case err := <-serveErr:
		broker.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	broker.Close()
	<-serveErr
	return err
}
