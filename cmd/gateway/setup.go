package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Setup command flags
var (
	setupConfigPath   string
	setupBaseURL      string
	setupClientID     string
	setupClientSecret string
	setupStaticKey    string
	setupListenAddr   string
	setupInteractive  bool
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write the gateway configuration file",
	Long:  `Create or update the .env file with upstream Game API credentials and gateway settings.`,
	RunE:  runSetup,
}

func init() {
	setupCmd.Flags().StringVarP(&setupConfigPath, "config", "c", ".env", "Path to the configuration file")
	setupCmd.Flags().StringVar(&setupBaseURL, "base-url", "", "Upstream Game API base URL")
	setupCmd.Flags().StringVar(&setupClientID, "client-id", "", "Upstream Game API client id")
	setupCmd.Flags().StringVar(&setupClientSecret, "client-secret", "", "Upstream Game API client secret")
	setupCmd.Flags().StringVar(&setupStaticKey, "api-key", "", "Static inbound API key (leave empty to generate)")
	setupCmd.Flags().StringVar(&setupListenAddr, "addr", "", "Address for the gateway to listen on")
	setupCmd.Flags().BoolVar(&setupInteractive, "interactive", false, "Prompt for missing values")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	existing := map[string]string{}
	if _, err := os.Stat(setupConfigPath); err == nil {
		if values, err := godotenv.Read(setupConfigPath); err == nil {
			existing = values
		}
	}

	if setupInteractive {
		reader := bufio.NewReader(cmd.InOrStdin())
		setupBaseURL = promptValue(cmd, reader, "Game API base URL", setupBaseURL, existing["GAME_API_BASE_URL"])
		setupClientID = promptValue(cmd, reader, "Game API client id", setupClientID, existing["GAME_API_CLIENT_ID"])
		setupClientSecret = promptValue(cmd, reader, "Game API client secret", setupClientSecret,
			obfuscateSecret(existing["GAME_API_CLIENT_SECRET"]))
		setupListenAddr = promptValue(cmd, reader, "Listen address", setupListenAddr, existing["LISTEN_ADDR"])
	}

	applySetupValue(existing, "GAME_API_BASE_URL", setupBaseURL)
	applySetupValue(existing, "GAME_API_CLIENT_ID", setupClientID)
	applySetupValue(existing, "GAME_API_CLIENT_SECRET", setupClientSecret)
	applySetupValue(existing, "LISTEN_ADDR", setupListenAddr)

	if existing["GAME_API_BASE_URL"] == "" {
		return fmt.Errorf("a Game API base URL is required: use --base-url or run with --interactive")
	}

	if setupStaticKey == "" && existing["STATIC_API_KEY"] == "" {
		setupStaticKey = generateSecureKey(32)
		cmd.Printf("Generated inbound API key: %s\n", obfuscateSecret(setupStaticKey))
	}
	applySetupValue(existing, "STATIC_API_KEY", setupStaticKey)

	if dir := filepath.Dir(setupConfigPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := godotenv.Write(existing, setupConfigPath); err != nil {
		return fmt.Errorf("failed to write %s: %w", setupConfigPath, err)
	}
	cmd.Printf("Configuration written to %s\n", setupConfigPath)
	return nil
}

// promptValue asks for a value unless the flag already supplied one. The
// current value, when present, is shown as a hint and kept on empty input.
func promptValue(cmd *cobra.Command, reader *bufio.Reader, label, flagValue, hint string) string {
	if flagValue != "" {
		return flagValue
	}
	if hint != "" {
		cmd.Printf("%s [%s]: ", label, hint)
	} else {
		cmd.Printf("%s: ", label)
	}
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func applySetupValue(values map[string]string, key, value string) {
	if value != "" {
		values[key] = value
	}
}

// obfuscateSecret keeps the first four characters for recognition.
func obfuscateSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}

// generateSecureKey returns a hex-encoded random key of length bytes.
func generateSecureKey(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic("failed to generate secure key")
	}
	return hex.EncodeToString(b)
}
