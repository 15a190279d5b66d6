// Copilot is an EMR co-pilot with confirmation-gated clinical tools.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "EMR co-pilot with confirmation-gated clinical tools, an audit trail, and a chat assistant",
	Long: `Copilot is a safety-first co-pilot for electronic medical records.
Every side-effecting clinical action runs through a two-phase confirmation
protocol with policy authorization and an append-only audit trail.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, mcpCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
