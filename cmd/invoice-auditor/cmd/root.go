package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rezonia/invoice-auditor/internal/config"
	"github.com/rezonia/invoice-auditor/internal/logger"
	"github.com/rezonia/invoice-auditor/internal/model"
)

var (
	version = "1.0.0"

	// Global flags
	configFile   string
	rulesPath    string
	outputFormat string
	verbose      bool

	v   = config.NewViper()
	cfg *config.Config
	log = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "invoice-auditor",
	Short: "Validate extracted invoice data against business rules",
	Long: `Invoice Auditor checks extracted invoice records against a declarative rule set.

Checks performed:
  - Required header and line item fields present
  - Field values coerce to their declared types
  - Currency resolves to an accepted ISO 4217 code
  - Line items and totals reconcile within tolerance

Each discrepancy is mapped to accept, flag for review or reject by the rule set's
policies and the most severe action becomes the invoice status.

Examples:
  # Validate a record against the default rules (configs/rules.yaml)
  invoice-auditor validate invoice.json

  # Validate a directory with a custom rule file, table output
  invoice-auditor validate invoices/ --rules rules.yaml -f table

  # Check a rule file
  invoice-auditor rules check rules.yaml`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command; SIGINT and SIGTERM cancel its context
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = log.Sync() }()
	return rootCmd.ExecuteContext(ctx)
}

// ExitCode maps an Execute error to a process exit code:
// 1 when invoices hit the --fail-on threshold, 2 for rule configuration errors
func ExitCode(err error) int {
	var cfgErr *model.ConfigError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &cfgErr):
		return 2
	default:
		return 1
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default: invoice-auditor.yaml in . or ./configs)")
	pf.StringVarP(&rulesPath, "rules", "r", "", "Rule file (env: AUDITOR_RULES_PATH)")
	pf.StringVarP(&outputFormat, "format", "f", "json", "Output format (json, table, csv)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	_ = v.BindPFlag("rules.path", pf.Lookup("rules"))
}

func initConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	cfg = loaded

	logCfg := cfg.Logger()
	// Batch commands keep stderr quiet unless asked; serve logs at the configured level
	switch {
	case verbose:
		logCfg.Level = "debug"
	case cmd.Name() != "serve" && logger.ParseLevel(logCfg.Level) < zapcore.WarnLevel:
		logCfg.Level = "warn"
	}
	l, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	log = l
	return nil
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
