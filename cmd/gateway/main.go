package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/cursor2b-collab/vip-sub001/internal/server"
)

// For testing
var osExit = os.Exit

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Game API gateway",
	Long: `Gateway between the gaming platform and the upstream Game API.
It manages upstream bearer tokens, enforces per-endpoint rate limits,
validates inbound callers and records every upstream call.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gateway version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("game-api-gateway %s\n", server.Version)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
