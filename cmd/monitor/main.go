package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"uplink-monitor/pkg/version"
)

func main() {
	var debug bool
	root := &cobra.Command{
		Use:           "monitor",
		Short:         "Internet uplink health monitor",
		Version:       version.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(serveCmd(&debug))
	root.AddCommand(watchCmd(&debug))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
