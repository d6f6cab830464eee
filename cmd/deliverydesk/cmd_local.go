package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jask/deliverydesk/internal/mockapi"
	"github.com/jask/deliverydesk/internal/service"
	"github.com/jask/deliverydesk/internal/testdata"
)

var mockAddr string

// mockAPICmd serves a seeded in-memory delivery API for demos and manual testing.
var mockAPICmd = &cobra.Command{
	Use:   "mock-api",
	Short: "Serve a seeded in-memory delivery API",
	Long: fmt.Sprintf(`Serve an in-memory copy of the delivery API with demo shipments.

Log in with user %q and password %q, and point api.base_url at
http://<addr>/api.`, testdata.DemoLogin, testdata.DemoPassword),
	RunE: runMockAPI,
}

// resetLocalCmd clears the local activity journal and shipment cache.
var resetLocalCmd = &cobra.Command{
	Use:   "reset-local",
	Short: "Clear the local activity journal and shipment cache",
	RunE:  runResetLocal,
}

func init() {
	mockAPICmd.Flags().StringVar(&mockAddr, "addr", "127.0.0.1:5000", "listen address")
}

func runMockAPI(cmd *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = e.log.Sync() }()

	srv := testdata.NewServer(time.Now(), mockapi.WithLogger(e.log.Named("mockapi")))
	httpSrv := &http.Server{
		Addr:              mockAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "mock API on http://%s/api (login %s / %s)\n", mockAddr, testdata.DemoLogin, testdata.DemoPassword)
	e.log.Info("mock api listening", zap.String("addr", mockAddr))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("mock api: %w", err)
	}
	return nil
}

func runResetLocal(cmd *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = e.log.Sync() }()

	db, err := e.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := (&service.MaintenanceService{DB: db}).Reset(cmd.Context()); err != nil {
		return err
	}
	e.log.Info("local data reset", zap.String("db", e.cfg.Database.Path))
	fmt.Fprintln(cmd.OutOrStdout(), "local activity and shipment cache cleared")
	return nil
}
