package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/autograde/internal/api"
	"github.com/joescharf/autograde/internal/logging"
)

var serveRubric string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server exposing grading, penalty and result endpoints
under /api/v1, plus Prometheus metrics at /metrics.
By default it listens on port 8474. Use --port to change it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8474, "port to listen on")
	serveCmd.Flags().StringVarP(&serveRubric, "rubric", "r", "", "Default rubric for grade requests")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func serveRun(cmd *cobra.Command) error {
	rubric, err := loadDefaultRubric(serveRubric)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
	defer stop()

	d, err := buildService(ctx, true)
	if err != nil {
		return err
	}
	defer closeStore()

	log := logging.Component("api")
	handler := api.NewServer(d.svc, rubric, d.metrics.Handler(), buildVersion, log).Router()

	addr := fmt.Sprintf(":%d", d.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	ui.Info("Serving API at http://localhost%s/api/v1", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	ui.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
