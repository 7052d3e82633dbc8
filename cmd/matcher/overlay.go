package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/onnwee/tradematch/internal/news"
)

// ErrMissingNewsCSV is returned when the overlay command has no news file to read.
var ErrMissingNewsCSV = errors.New("a news CSV is required (--news or NEWS_CSV)")

func (c *cli) overlayCmd() *cobra.Command {
	var (
		newsPath string
		country  string
		industry string
	)

	cmd := &cobra.Command{
		Use:   "overlay",
		Short: "Print the news overlay deltas per country and industry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("news") {
				c.cfg.NewsCSV = newsPath
			}
			if c.cfg.NewsCSV == "" {
				return ErrMissingNewsCSV
			}

			events, _, err := c.loader().LoadNews(c.cfg.NewsCSV)
			if err != nil {
				return err
			}
			idx := news.Build(events, c.cfg.News)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COUNTRY\tINDUSTRY\tDELTA")
			for _, e := range idx.Entries() {
				if country != "" && !strings.EqualFold(e.Country, country) {
					continue
				}
				if industry != "" && !strings.EqualFold(e.Industry, industry) {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%+.4f\n", e.Country, e.Industry, e.Delta)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&newsPath, "news", "", "global news CSV (overrides NEWS_CSV)")
	cmd.Flags().StringVar(&country, "country", "", "only show this country")
	cmd.Flags().StringVar(&industry, "industry", "", "only show this industry")
	return cmd
}
