package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version and BuildDate are set at build time:
//
//	go build -ldflags "-X 'main.Version=1.2.0' -X 'main.BuildDate=2024-03-20'"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "crossval",
		Short: "Deterministic cross-validation of fiscal documents",
		Long: `crossval correlates the line items of independently submitted fiscal
documents (NF-e XML, spreadsheets) by NCM, CFOP, parties and issue date,
and reports every monetary or quantity attribute that diverges between them.

Each run writes three artifacts: a canonical JSON report, a CSV table and a
Markdown summary.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML configuration file")

	rootCmd.AddCommand(newRunCmd(&cfgFile))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the application version",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "fiscal-crossval")
			fmt.Fprintf(out, "Version:    %s\n", Version)
			fmt.Fprintf(out, "Build Date: %s\n", BuildDate)
			fmt.Fprintf(out, "Go Version: %s\n", runtime.Version())
		},
	}
}
