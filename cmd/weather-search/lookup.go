package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kjstillabower/weather-search/internal/config"
	"github.com/kjstillabower/weather-search/internal/history"
	"github.com/kjstillabower/weather-search/internal/models"
	"github.com/kjstillabower/weather-search/internal/observability"
	"github.com/kjstillabower/weather-search/internal/session"
)

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <city> [country]",
		Short: "Look up current weather for a city once",
		Example: `  weather-search lookup London
  weather-search lookup Paris FR`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			country := ""
			if len(args) == 2 {
				country = args[1]
			}
			return runLookup(cmd.Context(), cmd.OutOrStdout(), args[0], country)
		},
	}
}

func runLookup(ctx context.Context, out io.Writer, city, country string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := observability.NewCLILogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	if err := a.session.Submit(ctx, city, country); err != nil {
		if errors.Is(err, session.ErrEmptyCity) {
			return err
		}
		return errors.New(session.Classify(err).Message())
	}
	st := a.session.State()
	printResult(out, st)
	return nil
}

func printResult(out io.Writer, st models.SessionState) {
	rec := st.Current
	if rec == nil {
		return
	}
	place := rec.Name
	if rec.Country != "" {
		place += ", " + rec.Country
	}
	condition := rec.Condition
	if condition == "" {
		condition = history.UnknownWeather
	}
	fmt.Fprintf(out, "%s\n", place)
	fmt.Fprintf(out, "  Weather:     %s\n", condition)
	fmt.Fprintf(out, "  Temperature: %.1f°C (%.1f°F)\n", rec.TemperatureC, rec.TemperatureF())
	fmt.Fprintf(out, "  Humidity:    %.0f%%\n", rec.Humidity)
	fmt.Fprintf(out, "  Retrieved:   %s\n", history.FormatDateTime(rec.RetrievedAt))
}
