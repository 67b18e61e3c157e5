package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"
	"github.com/patconext-data/internal/common/config"
	"github.com/patconext-data/internal/common/logger"
	"github.com/patconext-data/internal/dataset"
	"github.com/patconext-data/internal/schedule"
	"github.com/patconext-data/pkg/timetable/models"
	"github.com/spf13/cobra"
)

type options struct {
	file    string
	url     string
	at      string
	timeout time.Duration
	verbose bool
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "patco",
		Short:        "Show upcoming PATCO departures",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.file, "file", "", "Read the timetable dataset from a local file")
	root.PersistentFlags().StringVar(&opts.url, "url", "", "Timetable dataset URL (default $DATA_URL)")
	root.PersistentFlags().StringVar(&opts.at, "at", "", "Pretend it is this local time (2006-01-02T15:04)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Download timeout")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log fetch details to stderr")
	root.PersistentFlags().MarkHidden("at")

	root.AddCommand(newNextCmd(opts), newStationsCmd(opts))
	return root
}

func (o *options) logger() logger.Logger {
	if o.verbose {
		return logger.New(logger.ConsoleWriter())
	}
	return logger.Nop()
}

// loadDataset reads --file when given, otherwise downloads --url or the
// configured DATA_URL.
func (o *options) loadDataset(ctx context.Context, cfg *config.Config) (*models.Dataset, error) {
	if o.file != "" {
		f, err := os.Open(o.file)
		if err != nil {
			return nil, fmt.Errorf("opening dataset: %w", err)
		}
		defer f.Close()
		return models.Decode(f)
	}

	url := o.url
	if url == "" {
		url = cfg.Timetable.DataURL
	}
	result, err := dataset.NewHTTPFetcher(o.timeout, o.logger()).Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return result.Dataset, nil
}

func (o *options) resolver(cfg *config.Config) (*schedule.Resolver, error) {
	var clk clock.Clock = clock.New()
	if o.at != "" {
		at, err := time.ParseInLocation("2006-01-02T15:04", o.at, schedule.HomeZone)
		if err != nil {
			return nil, fmt.Errorf("parsing --at: %w", err)
		}
		mock := clock.NewMock()
		mock.Set(at)
		clk = mock
	}

	selector := schedule.NewSelector()
	selector.Match = schedule.MatchMode(cfg.Timetable.SpecialMatch)
	if cfg.Timetable.StandardPDFURL != "" {
		selector.StandardFallbackURL = cfg.Timetable.StandardPDFURL
	}
	if cfg.Timetable.SpecialPageURL != "" {
		selector.SpecialFallbackURL = cfg.Timetable.SpecialPageURL
	}
	return schedule.NewResolver(schedule.NewNormalizer(clk), selector, o.logger()), nil
}
