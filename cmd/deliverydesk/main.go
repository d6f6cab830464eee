// Command deliverydesk is the terminal console for closing out deliveries.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jask/deliverydesk/internal/api"
	"github.com/jask/deliverydesk/internal/config"
	"github.com/jask/deliverydesk/internal/database"
	"github.com/jask/deliverydesk/internal/database/repository"
	"github.com/jask/deliverydesk/internal/logging"
	"github.com/jask/deliverydesk/internal/prefs"
	"github.com/jask/deliverydesk/internal/secrets"
	"github.com/jask/deliverydesk/internal/service"
	"github.com/jask/deliverydesk/internal/tui"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "deliverydesk",
	Short: "Review, document and finalize deliveries from the terminal",
	Long: `deliverydesk lists shipments from the delivery API and opens a detail
view per shipment where tracking can be refreshed, proof-of-delivery files
uploaded and the delivery finalized.

Run 'deliverydesk login' once, or log in from the modal on first start.`,
	SilenceUsage: true,
	RunE:         runTUI,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	rootCmd.AddCommand(loginCmd, logoutCmd, mockAPICmd, resetLocalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env is what every command needs before doing real work.
type env struct {
	cfg config.Config
	log *zap.Logger
}

func setup() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger, err := logging.New(cfg.Log, verbose)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: logger}, nil
}

func (e *env) openDB() (*sql.DB, error) {
	if err := database.RunMigrations(e.cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(e.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}

func (e *env) client(token string) *api.Client {
	return api.NewClient(e.cfg.API.BaseURL, token,
		api.WithHTTPClient(&http.Client{Timeout: e.cfg.API.Timeout}),
		api.WithLogger(e.log.Named("api")),
	)
}

// resolveToken prefers the environment, then the config file, then the
// session saved by a previous login.
func (e *env) resolveToken() string {
	if t := e.cfg.ResolveToken(); t != "" {
		return t
	}
	t, err := secrets.Store{}.FetchToken(e.cfg.API.BaseURL)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(t)
}

func runTUI(cmd *cobra.Command, _ []string) error {
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

	loc, err := e.cfg.Location()
	if err != nil {
		e.log.Warn("using local timezone", zap.String("timezone", e.cfg.UI.Timezone), zap.Error(err))
		loc = nil
	}

	client := e.client(e.resolveToken())
	journal := &service.Journal{Activity: repository.NewActivityRepo(db), Log: e.log.Named("journal")}
	services := tui.Services{
		Shipments: &service.ShipmentService{
			API:     client,
			Cache:   repository.NewShipmentCacheRepo(db),
			Timeout: e.cfg.API.Timeout,
			Log:     e.log.Named("shipments"),
		},
		Loader: &service.DetailLoader{Source: client, Timeout: e.cfg.API.Timeout, Log: e.log.Named("detail")},
		Actions: &service.Actions{
			API:     client,
			Timeout: e.cfg.API.Timeout,
			Uploads: service.UploadPolicy{MaxBytes: e.cfg.Upload.MaxBytes, AllowedExtensions: e.cfg.Upload.AllowedExtensions},
			Journal: journal,
			Log:     e.log.Named("actions"),
		},
		Journal: journal,
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	e.log.Info("starting console", zap.String("base_url", client.BaseURL()), zap.Bool("has_token", client.Token() != ""))
	app := tui.New(ctx, e.cfg, client, services, loc, tui.Options{
		Tokens: secrets.Store{},
		Prefs:  prefs.Store{},
		Log:    e.log.Named("tui"),
	})
	if _, err := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
