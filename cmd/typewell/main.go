package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/typewell/typewell/cmd/typewell/commands"
	"github.com/typewell/typewell/config"
	"github.com/typewell/typewell/logger"
)

var rootCmd = &cobra.Command{
	Use:   "typewell",
	Short: "typewell - consistent type queries with automatic declaration acquisition",
	Long: `typewell answers hover, completion and diagnostics queries over TypeScript
sources while lazily acquiring the declaration files they reference from a
package CDN. Every answer reflects the declarations resolved by the time it
is produced; provisional results are never returned.

Available commands:
  serve   - Start the WebSocket query server
  resolve - Fetch the declaration closure of a package
  version - Show version information

Examples:
  typewell serve                   # Serve queries on the configured port
  typewell resolve lodash          # Pull lodash declarations
  typewell resolve @babel/core     # Scoped packages work too`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if err := logger.InitializeWithVerbosity(cfg.Log.JSON, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.ResolveCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
