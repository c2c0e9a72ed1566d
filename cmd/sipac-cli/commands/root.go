package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sipac-backend/internal/components/chrono"
	"sipac-backend/internal/components/telemetry"
	"sipac-backend/internal/service"
	"sipac-backend/internal/sipac/session"
	"sipac-backend/lib/configutil"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "sipac-cli",
	Short: "sipac-cli is a CLI for logging into SIPAC and scraping its pages.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json5", "The configuration file, searched upwards from the working directory.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStack builds a scraper with an in-memory session, every invocation logs in anew.
func openStack() (service.Stack, error) {
	read := configutil.ReadRecursively[service.Config]
	if filepath.IsAbs(configPath) {
		read = configutil.ReadConfig[service.Config]
	}
	cfg, err := read(configPath)
	if err != nil {
		return service.Stack{}, fmt.Errorf("read config %s: %w", configPath, err)
	}

	clock, err := chrono.NewStandardImpl(cfg.Portal.Timezone)
	if err != nil {
		return service.Stack{}, err
	}
	store := session.NewMemoryStore(time.Hour, clock)

	return service.Build(cfg, store, clock, telemetry.SlogAPI{})
}
