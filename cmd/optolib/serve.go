package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"

	"github.com/datallboy/optolib/internal/api"
	"github.com/datallboy/optolib/internal/app"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app.Context) error {
				if port == "" {
					port = a.Config.Port
				}

				dropped, err := a.Library.Reconcile(ctx)
				if err != nil {
					a.Logger.Warn("Library reconcile failed: %v", err)
				} else if len(dropped) > 0 {
					a.Logger.Info("Dropped %d stale library records", len(dropped))
				}

				e := echo.New()
				api.RegisterRoutes(e, a)

				srv := &http.Server{
					Addr:              ":" + port,
					Handler:           e,
					ReadHeaderTimeout: 10 * time.Second,
				}

				errCh := make(chan error, 1)
				go func() {
					a.Logger.Info("Listening on %s", srv.Addr)
					errCh <- srv.ListenAndServe()
				}()

				select {
				case err := <-errCh:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return err
				case <-ctx.Done():
					a.Logger.Info("Shutting down...")
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (defaults to config)")
	return cmd
}
