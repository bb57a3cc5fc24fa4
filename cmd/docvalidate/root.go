package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/docvalidate/internal/config"
	"github.com/JonMunkholm/docvalidate/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	envFile string
	noDB    bool
}

var rootCmd = &cobra.Command{
	Use:   "docvalidate",
	Short: "Validate authorization letters against a reference spreadsheet",
	Long: "docvalidate checks authorization letters against a reference spreadsheet\n" +
		"and the public CNPJ registry, classifying each as valid, invalid or error.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.envFile, "env-file", ".env", "Environment file to load if present")
	pf.BoolVar(&rootFlags.noDB, "no-db", false, "Keep the registry cache in memory even when DATABASE_URL is set")

	rootCmd.AddCommand(referenceCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.Version = version
}

// loadConfig reads the env file and configuration. Logs go to stderr so
// stdout stays clean for exports.
func loadConfig() (*config.Config, *slog.Logger, error) {
	if rootFlags.envFile != "" {
		_ = godotenv.Load(rootFlags.envFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
