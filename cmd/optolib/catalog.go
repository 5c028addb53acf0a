package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/datallboy/optolib/internal/app"
	"github.com/datallboy/optolib/internal/catalog"
	"github.com/datallboy/optolib/internal/domain"
)

func newCatalogCmd() *cobra.Command {
	var (
		category string
		status   bool
	)

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the home feed, or the books of one category",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app.Context) error {
				if status {
					info := a.Catalog.Service().Backend()
					fmt.Printf("Backend: %s\n", info.Backend)
					if info.Snapshots == nil {
						fmt.Println("Offline cache disabled")
					}
					for table, ok := range info.Snapshots {
						fmt.Printf("  %-12s snapshot=%t\n", table, ok)
					}
					return nil
				}

				if category != "" {
					st := a.Catalog.OpenCategory(ctx, category)
					if st.Status == catalog.StatusError {
						return errors.New(st.Message)
					}
					printBooks(a, st.Data)
					return nil
				}

				st := a.Catalog.RefreshHome(ctx)
				if st.Status == catalog.StatusError {
					return errors.New(st.Message)
				}
				if b := st.Data.BookOfTheDay; b != nil {
					fmt.Printf("Book of the day: %s by %s [%s]\n\n", b.Title, b.Author, b.Key())
				}
				for _, s := range st.Data.Sections {
					fmt.Printf("== %s (%s)\n", s.Category.Title, s.Category.ID)
					printBooks(a, s.Books)
					fmt.Println()
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "category id to list")
	cmd.Flags().BoolVar(&status, "status", false, "show the backend and which tables are cached for offline use")
	return cmd
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalog by title, author or description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app.Context) error {
				st := a.Catalog.Search(ctx, strings.Join(args, " "))
				if st.Status == catalog.StatusError {
					return errors.New(st.Message)
				}
				if len(st.Data) == 0 {
					fmt.Println("No books found.")
					return nil
				}
				printBooks(a, st.Data)
				return nil
			})
		},
	}
}

func printBooks(a *app.Context, books []domain.Book) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	for _, b := range books {
		mark := " "
		if a.Library.IsDownloaded(b.Key()) {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, b.Key(), b.Title, b.Author)
	}
}
