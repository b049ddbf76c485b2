package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints the currently active deals, best first.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show deals")
	}
	defer closeStore()

	deals, err := store.ListActiveDeals(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(deals) == 0 {
		fmt.Fprintln(os.Stdout, "no active deals")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Rank\tASIN\tType\tPrice\tWas\tOff%\tScore\tEnds (UTC)\tTitle")

	for _, deal := range deals {
		ends := ""
		if deal.EndDate != nil {
			ends = deal.EndDate.UTC().Format(time.RFC3339)
		}
		title := deal.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
			deal.PriorityRank,
			deal.ASIN,
			deal.Type,
			deal.DealPrice.StringFixed(2),
			deal.OriginalPrice.StringFixed(2),
			deal.DiscountPercent.Round(0),
			deal.QualityScore,
			ends,
			sanitizeInline(title),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
