package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/NewsDiscover/internal/app"
	"github.com/NewsDiscover/internal/domain"
	"github.com/spf13/cobra"
)

func newSearchCmd(opts *options) *cobra.Command {
	var (
		category string
		page     int
	)
	cmd := &cobra.Command{
		Use:   "search [keyword...]",
		Short: "Run a keyword and category search",
		Example: `  newsctl search elections --category politics
  newsctl search --category technology --page 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := newRuntime(opts)
			defer rt.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			intent := domain.SearchIntent{
				Keyword:    strings.Join(args, " "),
				CategoryID: category,
				Page:       page,
			}.Normalize()

			snap, err := rt.sessions.Search(ctx, intent)
			if err != nil {
				return fmt.Errorf("searching: %w", err)
			}
			if snap.State == app.StateError {
				return fmt.Errorf("searching: %w", snap.Err)
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), snap.Result)
			}

			out := cmd.OutOrStdout()
			if snap.Degraded {
				fmt.Fprintf(out, "category lookup failed, using %s\n", snap.CategoryURI)
			}
			printPage(out, *snap.Result)
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", domain.AllCategories, "category id")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number")
	return cmd
}

func newLatestCmd(opts *options) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the latest articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := newRuntime(opts)
			defer rt.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			result, err := rt.feed.Latest(ctx, page)
			if err != nil {
				return fmt.Errorf("loading latest: %w", err)
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), result)
			}
			printPage(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number")
	return cmd
}

func newArticleCmd(opts *options) *cobra.Command {
	var related bool
	cmd := &cobra.Command{
		Use:   "article <id>",
		Short: "Show one article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := newRuntime(opts)
			defer rt.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			article, err := rt.feed.Article(ctx, args[0])
			if err != nil {
				return fmt.Errorf("loading article: %w", err)
			}
			var more []domain.Article
			if related {
				if more, err = rt.feed.Related(ctx, args[0]); err != nil {
					return fmt.Errorf("loading related articles: %w", err)
				}
			}

			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"article": article, "related": more})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n%s | %s\n\n%s\n", article.Title, article.SourceName, article.PublishedAt.Format("2006-01-02 15:04"), article.Body)
			if article.URL != "" {
				fmt.Fprintf(out, "\n%s\n", article.URL)
			}
			if len(more) > 0 {
				fmt.Fprintln(out, "\nMore from this source:")
				for _, a := range more {
					fmt.Fprintf(out, "  %-12s %s\n", a.ID, a.Title)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&related, "related", false, "also list related articles")
	return cmd
}

func newCategoriesCmd(opts *options) *cobra.Command {
	var resolve bool
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List the category catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := newRuntime(opts)
			defer rt.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			catalog := append(domain.Catalog(nil), rt.resolver.Catalog()...)
			if resolve {
				for i, c := range catalog {
					res, err := rt.resolver.Resolve(ctx, c.ID)
					if err != nil {
						return fmt.Errorf("resolving %s: %w", c.ID, err)
					}
					catalog[i].ProviderURI = res.URI
				}
			}

			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), catalog)
			}
			for _, c := range catalog {
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-14s %s\n", c.ID, c.Label, c.ProviderURI)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&resolve, "resolve", false, "look up the provider URI of every category")
	return cmd
}

func printPage(w io.Writer, result domain.PaginatedResult) {
	fmt.Fprintf(w, "page %d of %d (%d articles)\n", result.Page, result.TotalPages, result.TotalCount)
	for _, a := range result.Items {
		fmt.Fprintf(w, "  %-12s %-16s %s\n", a.ID, a.PublishedAt.Format("2006-01-02"), a.Title)
	}
}
