package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rutmehta/halo/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "halo",
	Short: "Face similarity search engine",
	Long: `Halo is a face similarity search service. It extracts face embeddings
through an external provider, indexes them in an in-process vector index,
and answers image queries with the most similar known faces.

Example usage:
  halo serve                  # Start the HTTP API
  halo load ./faces           # Bulk-ingest a directory of face images
  halo snapshot push          # Publish the current snapshot to a blob store`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, optional)")
}

func initEnv() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig resolves the effective configuration: defaults, then the
// optional config file, then HALO_* environment variables.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
