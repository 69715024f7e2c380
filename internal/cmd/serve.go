package cmd

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/jpequegn/ttsdispatch/internal/config"
	"github.com/jpequegn/ttsdispatch/internal/history"
	"github.com/jpequegn/ttsdispatch/internal/metrics"
	"github.com/jpequegn/ttsdispatch/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control plane",
	Long: `Start the HTTP control plane: /upload, /progress, /server_status,
/retry_failed, and the /api folder-management endpoints.

Example:
  ttsdispatch serve --config ttsdispatch.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	store, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := store.Get()

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	var ledger *history.Ledger
	if cfg.HistoryDBPath != "" {
		ledger, err = history.Open(cfg.HistoryDBPath)
		if err != nil {
			return fmt.Errorf("open history ledger: %w", err)
		}
		defer ledger.Close()
	}

	srv := server.New(server.Options{
		Fs:      afero.NewOsFs(),
		Config:  store,
		Metrics: collector,
		Ledger:  ledger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort)
	slog.Info("ttsdispatch: starting HTTP control plane", "addr", addr)
	return http.ListenAndServe(addr, srv.Routes())
}
