package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logFormat  string
)

// newRootCommand builds the command tree. A fresh tree per call keeps tests
// free of flag state pollution.
func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "Solidus PIM server - product information management backend",
		Long: `Solidus PIM server manages a product catalog with vehicle fitment data,
digital assets, customer pricing, and scheduled data feed exports.

The server provides:
- Product catalog with brands, categories, and vehicle fitments
- Content-addressed digital asset storage with processing pipeline
- Customer-specific pricing with validity windows
- Scheduled CSV/JSON/XML data feeds with download, email, and webhook delivery
- Role-based access control and audit logging`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand means serve.
			return runServer()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (optional, uses env vars by default)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console) (default: json)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(feedsCmd)
	rootCmd.AddCommand(assetsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(healthcheckCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

// Execute runs the CLI. Called once from main.
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
