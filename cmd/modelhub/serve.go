package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/osvaldoandrade/modelhub/internal/services"
)

func serveCmd(g *globals, ui *ui) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local workflow shell over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer closeApp(application)

			if addr == "" {
				addr = application.Config.Shell.Addr
			}
			gin.SetMode(gin.ReleaseMode)
			engine := application.SetupEngine()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			cleanup := services.NewWorkflowCleanupService(application.Workflows, application.Logger, 60, application.Config.Shell.IdleSeconds)
			go cleanup.Start(ctx)

			srv := &http.Server{
				Addr:              addr,
				Handler:           engine,
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()
			fmt.Printf("%s Listening on http://%s\n", ui.ok("[OK]"), addr)

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
			fmt.Printf("%s Shell stopped\n", ui.info("[INFO]"))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from profile, 127.0.0.1:8787)")
	return cmd
}
