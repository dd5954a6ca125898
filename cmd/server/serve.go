package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/maheshrc27/reshare/internal/api"
	"github.com/maheshrc27/reshare/internal/api/handlers"
	"github.com/maheshrc27/reshare/internal/api/middleware"
	job "github.com/maheshrc27/reshare/internal/jobs"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewServeCommand(opts *RootOptions) *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			web := api.NewApp(*cfg)
			api.Register(web, middleware.NewAuthMiddleware(*cfg), api.Handlers{
				Auth:     handlers.NewAuthHandler(*cfg, a.tokens),
				Queue:    handlers.NewQueueHandler(a.queue, a.repos.history, cfg.Queue),
				Backfill: handlers.NewBackfillHandler(a.tasks),
				Settings: handlers.NewSettingsHandler(a.settings),
				Platform: handlers.NewPlatformHandler(a.settings),
				Library:  handlers.NewLibraryHandler(*cfg, a.indexer, a.repos.library, a.tokens),
			})

			c, err := job.NewCron(*cfg,
				job.NewTokenRefreshJob(a.tokens),
				job.NewDispatchJob(a.repos.tenants, a.queue),
				job.NewOverdueSweepJob(a.repos.tenants, a.queue),
			)
			if err != nil {
				log.Error().Err(err).Msg("invalid job schedule")
				return err
			}
			c.Start()

			if withWorker {
				srv := newTaskServer(a, 10)
				if err := srv.Start(a.worker().Mux()); err != nil {
					log.Error().Err(err).Msg("could not start task server")
					return err
				}
				defer srv.Shutdown()
			}

			errc := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.ListenAddr).Msg("server listening")
				errc <- web.Listen(cfg.ListenAddr)
			}()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-errc:
				log.Error().Err(err).Msg("server stopped")
				<-c.Stop().Done()
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			if err := web.Shutdown(); err != nil {
				log.Error().Err(err).Msg("server shutdown")
			}
			// wait for running jobs
			<-c.Stop().Done()
			log.Info().Msg("shutdown complete")
			return nil
		},
	}

	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the task worker in this process")
	return cmd
}
