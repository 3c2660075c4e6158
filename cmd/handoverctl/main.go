// Package main provides handoverctl, the operator CLI for schema migration,
// staleness sweeps, taxonomy checks and export verification.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"handover/internal/app"
	"handover/internal/config"
	"handover/internal/logging"
)

type options struct {
	storeDriver string
	logLevel    string
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "handoverctl",
		Short: "Operate the handover service",
		Long: `handoverctl runs maintenance tasks against the same configuration as the API server.

Examples:
  handoverctl migrate                 # Apply schema migrations
  handoverctl migrate --list          # Print migration steps
  handoverctl sweep                   # Archive idle drafts, report stale reviews
  handoverctl taxonomy check rules.yaml
  handoverctl verify-export <id> --tenant t1 --user alice`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.storeDriver, "store", "", "Override STORE_DRIVER (postgres or memory)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override LOG_LEVEL")

	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newSweepCmd(opts))
	root.AddCommand(newTaxonomyCmd())
	root.AddCommand(newVerifyExportCmd(opts))
	return root
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

// load reads the environment configuration and applies flag overrides.
// Logs go to stderr so command output stays machine readable.
func (o *options) load() (*config.AppConfig, *logrus.Logger) {
	cfg := config.Load()
	if o.storeDriver != "" {
		cfg.StoreDriver = o.storeDriver
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, logging.New(os.Stderr, cfg.LogLevel, cfg.Location())
}

func (o *options) open(ctx context.Context) (*app.App, error) {
	cfg, log := o.load()
	return app.New(ctx, cfg, log, nil)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
