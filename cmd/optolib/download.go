package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/datallboy/optolib/internal/app"
	"github.com/datallboy/optolib/internal/domain"
	"github.com/datallboy/optolib/internal/engine"
)

func newDownloadCmd() *cobra.Command {
	var title, url string

	cmd := &cobra.Command{
		Use:   "download <key>",
		Short: "Download a book into the local library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app.Context) error {
				key := domain.BookKey(args[0])

				if title == "" || url == "" {
					b, err := a.Catalog.Service().Book(ctx, key)
					if err != nil {
						return fmt.Errorf("resolve %s: %w", key, err)
					}
					key, title, url = b.Key(), b.Title, b.PDFURL
				}

				bar := engine.NewProgressBar(os.Stdout, title)
				snaps, cancel := a.Library.Subscribe()
				defer cancel()

				done := a.Engine.Start(key, title, url)
				last := -1
				for {
					select {
					case snap := <-snaps:
						if p := snap.State(key).Progress; p != last {
							last = p
							bar.Render(p)
						}
					case ok := <-done:
						f, found := a.Library.DownloadedFile(key)
						if !ok || !found {
							bar.Fail()
							return fmt.Errorf("download of %s failed, see %s", key, a.Config.Log.Path)
						}
						bar.Finish(f.Size, f.Path)
						return nil
					case <-ctx.Done():
						// The transfer is not user-cancellable; closing the app aborts it
						fmt.Println()
						return ctx.Err()
					}
				}
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "book title (skips the catalog lookup together with --url)")
	cmd.Flags().StringVar(&url, "url", "", "PDF URL")
	return cmd
}
