// Package cmd implements the gopos-edge command line.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gopos-edge",
	Short: "Offline cache and push notification edge for GOPOS",
	Long: `gopos-edge sits between GOPOS browsers and the GOPOS web origin.
It pre-caches the application shell, answers requests from the cache when
the origin is unreachable, and turns push messages into notifications for
every open page.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "gopos-edge.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
