package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor   bool
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:           "evlink",
	Short:         "Track NCCD adjustments, link them to evidence and report compliance",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server base URL (default from server.host and server.port)")

	rootCmd.AddCommand(serveCmd, mcpCmd)
	rootCmd.AddCommand(extractCmd, linkCmd, reviewCmd, summaryCmd)
	rootCmd.AddCommand(dataCmd, statsCmd, resetCmd, watchCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
