// Command nftmarket runs the marketplace node and provides client
// subcommands that sign and submit marketplace transactions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	apiURL     string
)

var rootCmd = &cobra.Command{
	Use:           "nftmarket",
	Short:         "NFT marketplace node and client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "http://localhost:8080", "base URL of a running node")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateKeyCmd, encryptKeyCmd, addressCmd)
	for _, c := range txCommands() {
		rootCmd.AddCommand(c.Command)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
