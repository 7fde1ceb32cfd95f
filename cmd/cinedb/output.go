package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/vmunix/cinedb/internal/catalog"
	"github.com/vmunix/cinedb/internal/content"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printEntries(w io.Writer, entries []content.LightEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No entries found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tYEAR\tRATING\tGENRE\tCOUNTRY")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			truncate(e.Title, 48), orDash(e.Year.String()), orDash(e.Rating.String()),
			orDash(e.SubCategory), orDash(e.Country))
	}
	_ = tw.Flush()
}

func printPage(w io.Writer, p *catalog.Page) {
	printEntries(w, p.Entries)
	if len(p.Entries) == 0 {
		return
	}
	first := p.Page*p.PageSize + 1
	last := first + len(p.Entries) - 1
	fmt.Fprintf(w, "\nShowing %d-%d of %d", first, last, p.TotalCount)
	if p.HasMore {
		fmt.Fprintf(w, " (next: --page %d)", p.Page+1)
	}
	fmt.Fprintln(w)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
