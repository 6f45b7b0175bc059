package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
	principal  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "accesstime",
	Short: "accesstime - time-bounded access entitlements paid for in tokens",
	Long: `accesstime sells packages of access time for a fungible token, records
each purchase as an order, credits granted orders to the owner's session, and
answers whether an owner's access is currently active.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to server command when no subcommand is provided
		return runServer(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/accesstime/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&principal, "as", "", "Principal to act as for commands that change state")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
