package main

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewWorkerCommand(opts *RootOptions) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the task worker that publishes posts and backfills",
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

			log.Info().Int("concurrency", concurrency).Msg("starting task worker")
			// Run blocks until SIGTERM or SIGINT.
			if err := newTaskServer(a, concurrency).Run(a.worker().Mux()); err != nil {
				log.Error().Err(err).Msg("task worker stopped")
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 10, "tasks processed at once")
	return cmd
}

func newTaskServer(a *app, concurrency int) *asynq.Server {
	return asynq.NewServer(asynqOptions(a.redisOpt), asynq.Config{
		Concurrency: concurrency,
		Logger:      asynqLogger{},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Warn().Err(err).Str("type", task.Type()).Msg("task failed")
		}),
	})
}

// asynqLogger routes asynq's own logging through zerolog.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { log.Debug().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...interface{})  { log.Info().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...interface{})  { log.Warn().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...interface{}) { log.Error().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...interface{}) { log.Fatal().Msg(fmt.Sprint(args...)) }
