package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/maheshrc27/reshare/internal/queue"
	"github.com/maheshrc27/reshare/internal/transfer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type backfillFlags struct {
	tenant   string
	limit    int
	since    string
	media    string
	dryRun   bool
	category string
	enqueue  bool
}

func NewBackfillCommand(opts *RootOptions) *cobra.Command {
	f := &backfillFlags{}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Download a tenant's existing Instagram media into the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request()
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if f.enqueue {
				runID, err := queue.EnqueueBackfill(cmd.Context(), a.tasks, f.tenant, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), runID)
				return nil
			}

			bopts, err := queue.BackfillOptions(f.tenant, req)
			if err != nil {
				return err
			}
			res, err := a.pipeline.Run(cmd.Context(), bopts)
			if res != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(res); encErr != nil {
					log.Error().Err(encErr).Msg("writing result")
				}
			}
			if err != nil {
				log.Error().Err(err).Str("tenant", f.tenant).Msg("backfill aborted")
				return err
			}
			if res != nil && res.Failed > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d items failed\n", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&f.tenant, "tenant", "", "tenant key to backfill")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum items to process, 0 for no limit")
	cmd.Flags().StringVar(&f.since, "since", "", "skip media older than this date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&f.media, "media", "feed", "feed, stories or both")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "report what would be downloaded without writing anything")
	cmd.Flags().StringVar(&f.category, "category", "", "library category for downloaded items")
	cmd.Flags().BoolVar(&f.enqueue, "enqueue", false, "hand the run to the worker and print its run id")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func (f *backfillFlags) request() (transfer.BackfillRequest, error) {
	req := transfer.BackfillRequest{
		Limit:      f.limit,
		MediaTypes: f.media,
		DryRun:     f.dryRun,
		Category:   f.category,
	}
	if f.since != "" {
		since, err := parseSince(f.since)
		if err != nil {
			return req, err
		}
		req.Since = &since
	}
	return req, nil
}

func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since %q must be YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}
