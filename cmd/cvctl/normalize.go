package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/analysis"
)

func newNormalizeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "normalize <skills...>",
		Short:   "Print the canonical skill list for a free-text skills string",
		Example: `  cvctl normalize "React.js, nodejs & AWS"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			skills := analysis.NormalizeSkills(strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(skills)
			}
			for _, s := range skills {
				if _, err := fmt.Fprintln(out, s); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print a JSON array instead of one skill per line")
	return cmd
}
