package main

import (
	"github.com/maheshrc27/reshare/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			db, err := repository.Open(cfg.PostgresURI)
			if err != nil {
				log.Error().Err(err).Msg("database is unreachable")
				return err
			}
			defer db.Close()

			if err := repository.Migrate(db, dir); err != nil {
				return err
			}
			log.Info().Str("dir", dir).Msg("migrations applied")
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (defaults to MIGRATIONS_DIR)")
	return cmd
}
