package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/datallboy/optolib/internal/app"
	"github.com/datallboy/optolib/internal/domain"
)

func newLibraryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "library",
		Short: "List downloaded books",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app.Context) error {
				recs := a.Library.List()
				if len(recs) == 0 {
					fmt.Println("Library is empty.")
					return nil
				}

				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				defer tw.Flush()
				fmt.Fprintln(tw, "KEY\tTITLE\tSIZE\tDOWNLOADED")
				for _, r := range recs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Key, r.Title, humanize.Bytes(uint64(r.Size)), humanize.Time(r.DownloadedAt))
				}
				return nil
			})
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <key>...",
		Short: "Delete downloaded books",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app.Context) error {
				for _, k := range args {
					if err := a.Library.Remove(ctx, domain.BookKey(k)); err != nil {
						return err
					}
					fmt.Printf("Removed %s\n", k)
				}
				return nil
			})
		},
	}
}

func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every downloaded book",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the library without --yes")
			}
			return withApp(cmd, true, func(ctx context.Context, a *app.Context) error {
				n := len(a.Library.List())
				if err := a.Library.ClearAll(ctx); err != nil {
					return err
				}
				fmt.Printf("Removed %d books\n", n)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var deep bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Drop records whose files are missing and delete orphaned files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app.Context) error {
				dropped, err := a.Library.Reconcile(ctx)
				if err != nil {
					return err
				}
				for _, k := range dropped {
					fmt.Printf("Dropped stale record %s\n", k)
				}

				if deep {
					corrupt, err := a.Library.VerifyHashes(ctx)
					if err != nil {
						return err
					}
					for _, k := range corrupt {
						fmt.Printf("Dropped corrupt file %s\n", k)
					}
					dropped = append(dropped, corrupt...)
				}

				if len(dropped) == 0 {
					fmt.Println("Library is consistent.")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&deep, "deep", false, "also re-hash every file against its recorded checksum")
	return cmd
}
