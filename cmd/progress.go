package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sells-group/business-finder/internal/model"
)

// printProgress drains events to out until the channel closes.
func printProgress(out io.Writer, events <-chan model.Progress) {
	for p := range events {
		if p.Total > 0 {
			_, _ = fmt.Fprintf(out, "[%d/%d] %s\n", p.Current, p.Total, p.Message)
			continue
		}
		_, _ = fmt.Fprintln(out, p.Message)
	}
}

// formatBusinesses writes a results table, one row per business.
func formatBusinesses(out io.Writer, businesses []model.Business) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tADDRESS\tCATEGORY\tWEBSITE\tSTATUS")
	_, _ = fmt.Fprintln(w, "----\t-------\t--------\t-------\t------")
	for i := range businesses {
		b := &businesses[i]
		status := "Incomplete"
		if b.Complete {
			status = "Complete"
		}
		site := b.WebsiteOrEmpty()
		if site == "" {
			site = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", b.Name, b.Address, b.Category, site, status)
	}
	_ = w.Flush()
}

// formatSummary writes the count line shown after discovery or enrichment.
func formatSummary(out io.Writer, res *model.DiscoveryResult) {
	if res.NoResultsInArea() {
		_, _ = fmt.Fprintln(out, model.ErrNoResultsInArea.Error())
		return
	}
	_, _ = fmt.Fprintf(out, "Found %d businesses around %s (%.4f, %.4f); %d without a website.\n",
		len(res.Businesses), res.Center.Query, res.Center.Latitude, res.Center.Longitude, res.MissingWebsites())
}
