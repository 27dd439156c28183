// Command cvctl analyzes CV files from the command line using the same
// pipeline as the HTTP service, without persistence or queueing.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cvctl",
		Short:         "Analyze CVs against required skills",
		Long:          "cvctl extracts text from PDF, DOCX or TXT files, asks the configured completion provider for a structured analysis and prints ranked results.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAnalyzeCmd(), newNormalizeCmd())
	return root
}

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
