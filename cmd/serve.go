package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/deal-sourcing/internal/api"
	"github.com/sells-group/deal-sourcing/internal/scheduler"
)

var (
	servePort       int
	serveNoSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and the cron scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		opts := []api.Option{
			api.WithCredentialCheck(cfg.MissingCredentials),
			api.WithCORSOrigins(cfg.Server.CORSOrigins),
		}

		sched, err := startBackground(ctx, env, cfg.Scheduler.Enabled && !serveNoSchedule)
		if err != nil {
			return err
		}
		if sched != nil {
			defer sched.Stop()
			opts = append(opts, api.WithReloader(sched))
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.New(env.Store, env.Orchestrator, opts...).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		zap.L().Info("waiting for background runs to finish")
		return nil
	},
}

// startBackground fails workflows left running by a previous process and,
// when schedule is set, starts the cron scheduler. Recovery runs either way.
func startBackground(ctx context.Context, env *pipelineEnv, schedule bool) (*scheduler.Scheduler, error) {
	n, err := env.Store.FailOrphanedWorkflows(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "serve: fail orphaned workflows")
	}
	if n > 0 {
		zap.L().Warn("marked orphaned workflows failed", zap.Int("count", n))
	}

	if !schedule {
		zap.L().Info("scheduler disabled")
		return nil, nil
	}
	sched, err := scheduler.New(env.Store, env.Orchestrator, cfg.Scheduler)
	if err != nil {
		return nil, err
	}
	if err := sched.Start(ctx); err != nil {
		return nil, err
	}
	zap.L().Info("scheduler started", zap.Int("configurations", len(sched.Next())))
	return sched, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoSchedule, "no-schedule", false, "do not start the cron scheduler")
	rootCmd.AddCommand(serveCmd)
}
