package main

import (
	"fmt"
	"strings"

	"github.com/patconext-data/internal/common/config"
	"github.com/patconext-data/internal/schedule"
	"github.com/patconext-data/pkg/timetable/models"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
)

func newNextCmd(opts *options) *cobra.Command {
	var (
		count int
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "next <station> <direction>",
		Short: "List the next trains from a station",
		Example: `  patco next lindenwold wb
  patco next "8th" eastbound -n 5
  patco next haddonfield w -q`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("count must be at least 1")
			}
			dir, ok := models.ParseDirection(args[1])
			if !ok {
				return fmt.Errorf("invalid direction %q: use westbound/wb or eastbound/eb", args[1])
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ds, err := opts.loadDataset(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			resolver, err := opts.resolver(cfg)
			if err != nil {
				return err
			}

			stations := schedule.StationsFor(ds, dir)
			station, ok := schedule.NormalizeStation(args[0], stations)
			if !ok {
				return fmt.Errorf("station %q not found; valid %s stations: %s",
					args[0], dir, strings.Join(stations, ", "))
			}

			now := resolver.Now()
			resolved := resolver.ResolveAt(ds, station, dir, count, now)
			if resolved == nil {
				return fmt.Errorf("no upcoming trains found")
			}

			out := cmd.OutOrStdout()
			if quiet {
				for _, dep := range resolved.Trains {
					fmt.Fprintln(out, dep.Time)
				}
				return nil
			}

			fmt.Fprintf(out, "Station:   %s\n", station)
			fmt.Fprintf(out, "Direction: %s\n", dir)
			fmt.Fprintf(out, "Now:       %s (%s)\n", now.Format("Monday 03:04 PM"), resolved.Schedule)
			fmt.Fprintln(out)

			tbl := table.New("#", "Departs", "In", "Schedule").WithWriter(out)
			for i, dep := range resolved.Trains {
				clock, _ := models.ParseClockTime(dep.Time)
				when := clock.Format()
				if dep.IsTomorrow {
					when += " (tomorrow)"
				}
				tbl.AddRow(i+1, when, fmt.Sprintf("%d min", dep.Minutes), dep.Schedule)
			}
			tbl.Print()
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 2, "Number of trains to show")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print departure times only")
	return cmd
}
