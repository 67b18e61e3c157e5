package main

import (
	"fmt"

	"github.com/patconext-data/internal/common/config"
	"github.com/patconext-data/internal/schedule"
	"github.com/patconext-data/pkg/timetable/models"
	"github.com/spf13/cobra"
)

func newStationsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stations [direction]",
		Short: "List stations in travel order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := models.Westbound
			if len(args) == 1 {
				var ok bool
				if dir, ok = models.ParseDirection(args[0]); !ok {
					return fmt.Errorf("invalid direction %q: use westbound/wb or eastbound/eb", args[0])
				}
			}

			var ds *models.Dataset
			if opts.file != "" || opts.url != "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				if ds, err = opts.loadDataset(cmd.Context(), cfg); err != nil {
					return err
				}
			}

			for _, station := range schedule.StationsFor(ds, dir) {
				fmt.Fprintln(cmd.OutOrStdout(), station)
			}
			return nil
		},
	}
}
