package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/invoice-auditor/internal/metrics"
	"github.com/rezonia/invoice-auditor/internal/rules"
	"github.com/rezonia/invoice-auditor/internal/server"
)

var (
	serverAddr  string
	serverDebug bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server for validating invoices.

The API provides endpoints for:
  - POST /api/v1/validate        - Validate one record (JSON or YAML)
  - POST /api/v1/validate/batch  - Validate a list of records
  - GET  /api/v1/rules           - Show the active rule set
  - POST /api/v1/rules/reload    - Re-read the rule file
  - GET  /metrics                - Prometheus metrics
  - GET  /health                 - Health check

SIGHUP also reloads the rule file. A rule file that fails to load leaves the
previous rules active.

Examples:
  # Start server with settings from invoice-auditor.yaml
  invoice-auditor serve

  # Start on a custom address with another rule file
  invoice-auditor serve --address :9090 --rules rules.yaml

  # Start in debug mode
  invoice-auditor serve --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", "", "Server listen address (default: server.host:server.port)")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
}

func runServe(cmd *cobra.Command, args []string) error {
	store, err := rules.OpenStore(cfg.Rules.Path)
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr()
	if serverAddr != "" {
		addr = serverAddr
	}

	recorder := metrics.NewRecorder()
	srv := server.NewServer(&server.Config{
		Address:      addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		MaxBodySize:  cfg.Server.MaxBodySize,
		MaxBatchSize: cfg.Server.MaxBatchSize,
		Debug:        serverDebug,
	}, store,
		server.WithLogger(log),
		server.WithMetrics(recorder),
		server.WithWorkers(cfg.Processor.Workers),
	)

	rs, _ := store.Current()
	log.Info("rules loaded",
		zap.String("path", store.Path()),
		zap.String("fingerprint", rs.Fingerprint),
	)

	ctx := cmd.Context()
	go reloadOnHangup(ctx, store, recorder)

	return srv.Run(ctx)
}

func reloadOnHangup(ctx context.Context, store *rules.Store, recorder *metrics.Recorder) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			rs, err := store.ReloadFile("")
			recorder.ObserveReload(err)
			if err != nil {
				log.Error("rule reload failed, keeping previous rules", zap.Error(err))
				continue
			}
			log.Info("rules reloaded", zap.String("fingerprint", rs.Fingerprint))
		}
	}
}
