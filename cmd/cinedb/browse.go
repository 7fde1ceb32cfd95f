package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vmunix/cinedb/internal/catalog"
	"github.com/vmunix/cinedb/internal/content"
)

type pageFlags struct {
	page int
	size int
}

func (f *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.page, "page", 0, "Page number, starting at 0")
	cmd.Flags().IntVar(&f.size, "size", 20, "Entries per page")
}

// withCatalog runs fn against the installed catalog and closes it afterwards.
func withCatalog(cmd *cobra.Command, opts *rootOptions, fn func(s *catalog.Store) error) error {
	s, err := opts.openCatalog(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(s)
}

func pageResult(cmd *cobra.Command, opts *rootOptions, p *catalog.Page) error {
	if opts.jsonOutput {
		return printJSON(cmd.OutOrStdout(), p)
	}
	printPage(cmd.OutOrStdout(), p)
	return nil
}

func listResult(cmd *cobra.Command, opts *rootOptions, entries []content.LightEntry) error {
	if opts.jsonOutput {
		return printJSON(cmd.OutOrStdout(), entries)
	}
	printEntries(cmd.OutOrStdout(), entries)
	return nil
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		pf       pageFlags
		category string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries by title",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, opts, func(s *catalog.Store) error {
				var (
					p   *catalog.Page
					err error
				)
				if category != "" {
					p, err = s.ListByCategory(cmd.Context(), category, pf.page, pf.size)
				} else {
					p, err = s.List(cmd.Context(), pf.page, pf.size)
				}
				if err != nil {
					return err
				}
				return pageResult(cmd, opts, p)
			})
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&category, "category", "", "Main category (e.g. Movies)")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var pf pageFlags
	cmd := &cobra.Command{
		Use:   "search <text>...",
		Short: "Find entries whose title contains text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, opts, func(s *catalog.Store) error {
				p, err := s.Search(cmd.Context(), strings.Join(args, " "), pf.page, pf.size)
				if err != nil {
					return err
				}
				return pageResult(cmd, opts, p)
			})
		},
	}
	pf.register(cmd)
	return cmd
}

func newFilterCmd(opts *rootOptions) *cobra.Command {
	var (
		pf                   pageFlags
		genre, country, year string
	)
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "List entries matching genre, country and year",
		Long: `List entries matching every given field. Omitted fields match anything.

Examples:
  cinedb filter --genre Drama --country FR
  cinedb filter --year 2021`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := catalog.Filter{
				Genre:   flagValue(cmd, "genre", genre),
				Country: flagValue(cmd, "country", country),
				Year:    flagValue(cmd, "year", year),
			}
			return withCatalog(cmd, opts, func(s *catalog.Store) error {
				p, err := s.Filter(cmd.Context(), f, pf.page, pf.size)
				if err != nil {
					return err
				}
				return pageResult(cmd, opts, p)
			})
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&genre, "genre", "", "Sub category")
	cmd.Flags().StringVar(&country, "country", "", "Country")
	cmd.Flags().StringVar(&year, "year", "", "Release year")
	return cmd
}

// flagValue returns nil for an unset flag so it acts as a wildcard.
func flagValue(cmd *cobra.Command, name, v string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func newTopCmd(opts *rootOptions) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the highest rated entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, opts, func(s *catalog.Store) error {
				entries, err := s.TopRated(cmd.Context(), n)
				if err != nil {
					return err
				}
				return listResult(cmd, opts, entries)
			})
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "Number of entries")
	return cmd
}

func newRecentCmd(opts *rootOptions) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recently added entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, opts, func(s *catalog.Store) error {
				entries, err := s.RecentlyAdded(cmd.Context(), n)
				if err != nil {
					return err
				}
				return listResult(cmd, opts, entries)
			})
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "Number of entries")
	return cmd
}

func newDistinctCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "distinct <genre|country|year>",
		Short:     "List the distinct values of a field",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(catalog.FieldGenre), string(catalog.FieldCountry), string(catalog.FieldYear)},
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := catalog.ParseField(args[0])
			if err != nil {
				return err
			}
			return withCatalog(cmd, opts, func(s *catalog.Store) error {
				values, err := s.DistinctValues(cmd.Context(), field)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), values)
				}
				for _, v := range values {
					fmt.Fprintln(cmd.OutOrStdout(), v)
				}
				return nil
			})
		},
	}
}

func newCategoriesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List main categories and their sub categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, opts, func(s *catalog.Store) error {
				cats, err := s.Categories(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), cats)
				}
				for _, c := range cats {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", c.Name, strings.Join(c.SubCategories, ", "))
				}
				return nil
			})
		},
	}
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	var year string
	cmd := &cobra.Command{
		Use:   "show <title>...",
		Short: "Show one entry with its servers and seasons",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args, " ")
			return withCatalog(cmd, opts, func(s *catalog.Store) error {
				e, err := s.FullEntry(cmd.Context(), title, flagValue(cmd, "year", year))
				if errors.Is(err, catalog.ErrNotFound) {
					return notFound(cmd, s, title)
				}
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), e)
				}
				printFullEntry(cmd, e)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&year, "year", "", "Disambiguate by release year")
	return cmd
}

func notFound(cmd *cobra.Command, s *catalog.Store, title string) error {
	suggestions, err := s.Suggest(cmd.Context(), title, 5)
	if err == nil && len(suggestions) > 0 {
		w := cmd.ErrOrStderr()
		fmt.Fprintln(w, "Did you mean:")
		for _, sg := range suggestions {
			if sg.Year != "" {
				fmt.Fprintf(w, "  %s (%s)\n", sg.Title, sg.Year)
			} else {
				fmt.Fprintf(w, "  %s\n", sg.Title)
			}
		}
	}
	return fmt.Errorf("%q: %w", title, catalog.ErrNotFound)
}

func printFullEntry(cmd *cobra.Command, e *content.FullEntry) {
	w := cmd.OutOrStdout()
	if y := e.YearString(); y != "" {
		fmt.Fprintf(w, "%s (%s)\n", e.Title, y)
	} else {
		fmt.Fprintln(w, e.Title)
	}
	fmt.Fprintf(w, "  Category:  %s / %s\n", orDash(e.MainCategory), orDash(e.SubCategory))
	fmt.Fprintf(w, "  Country:   %s\n", orDash(e.Country))
	fmt.Fprintf(w, "  Rating:    %s\n", orDash(e.Rating.String()))
	if e.Duration != "" {
		fmt.Fprintf(w, "  Duration:  %s\n", e.Duration)
	}
	if e.Description != "" {
		fmt.Fprintf(w, "\n  %s\n", e.Description)
	}

	if len(e.Servers) > 0 {
		fmt.Fprintln(w, "\nServers")
		for _, srv := range e.Servers {
			drm := ""
			if srv.IsDRM() {
				drm = " [drm]"
			}
			fmt.Fprintf(w, "  %-12s %s%s\n", srv.Name, srv.URL, drm)
		}
	}
	if len(e.Seasons) > 0 {
		fmt.Fprintln(w, "\nSeasons")
		for _, season := range e.Seasons {
			fmt.Fprintf(w, "  Season %d: %d episodes\n", season.Number, len(season.Episodes))
		}
	}
	if len(e.Related) > 0 {
		fmt.Fprintln(w, "\nRelated")
		for _, r := range e.Related {
			fmt.Fprintf(w, "  %s\n", r.Title)
		}
	}
}
