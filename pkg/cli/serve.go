package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/bubbleboard/pkg/server"
	"github.com/m-mizutani/bubbleboard/pkg/usecase/feed"
	"github.com/m-mizutani/bubbleboard/pkg/usecase/submission"
	"github.com/m-mizutani/bubbleboard/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg       config
		addr      string
		enforce   bool
		rateLimit float64
		rateBurst int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       "127.0.0.1:8080",
			Sources:     cli.EnvVars("BUBBLEBOARD_ADDR"),
			Destination: &addr,
		},
		&cli.BoolFlag{
			Name:        "enforce-moderation",
			Usage:       "Reject denylisted submissions at the gateway instead of only logging them",
			Sources:     cli.EnvVars("BUBBLEBOARD_ENFORCE_MODERATION"),
			Destination: &enforce,
		},
		&cli.FloatFlag{
			Name:        "rate-limit",
			Usage:       "Submissions per second allowed per client IP (0 disables)",
			Value:       1,
			Sources:     cli.EnvVars("BUBBLEBOARD_RATE_LIMIT"),
			Destination: &rateLimit,
		},
		&cli.IntFlag{
			Name:        "rate-burst",
			Usage:       "Burst size of the per-client rate limit",
			Value:       5,
			Sources:     cli.EnvVars("BUBBLEBOARD_RATE_BURST"),
			Destination: &rateBurst,
		},
	}
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, moderationFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the demo page, the submission gateway and the submit-text function",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogging(ctx)
			if err != nil {
				return err
			}
			logger := logging.From(ctx)

			// Initialize dependencies
			backend, err := cfg.newBackend()
			if err != nil {
				return err
			}

			repo, closeRepo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			filter, err := cfg.newFilter(ctx)
			if err != nil {
				return err
			}

			consumer := feed.New(repo)
			srv := server.New(
				server.WithGateway(backend),
				server.WithFunction(submission.New(repo), cfg.serviceKey),
				server.WithFeed(consumer),
				server.WithModeration(filter, enforce),
				server.WithRateLimit(rateLimit, int(rateBurst)),
			)

			if err := consumer.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start feed")
			}
			defer consumer.Stop()

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv,
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext:       func(net.Listener) context.Context { return ctx },
			}

			sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", addr, "store", cfg.store, "enforce_moderation", enforce)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return goerr.Wrap(err, "server stopped", goerr.V("addr", addr))
				}
				return nil
			case <-sigCtx.Done():
			}

			logger.Info("shutting down")
			srv.Close()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shut down server")
			}
			return nil
		},
	}
}
