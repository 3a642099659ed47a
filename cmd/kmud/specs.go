package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/crystal-mush/kmud/pkg/cmdspec"
	"github.com/crystal-mush/kmud/pkg/commands"
	"github.com/spf13/cobra"
)

var specsVerbose bool

// specsCmd checks that every command spec compiles.
var specsCmd = &cobra.Command{
	Use:   "specs",
	Short: "Compile and list every command spec",
	Long: `Compile the spec of every registered command and print its usage.
Exits non-zero if any spec is malformed, so it can gate a deploy.`,
	Args: cobra.NoArgs,
	RunE: runSpecs,
}

func init() {
	specsCmd.Flags().BoolVarP(&specsVerbose, "verbose", "v", false, "also print the compiled pattern")
	rootCmd.AddCommand(specsCmd)
}

func runSpecs(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	failed := 0
	for _, f := range commands.All() {
		c := f()
		m, err := cmdspec.Compile(c.Spec())
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", c.Key(), err)
			failed++
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Key(), m.Usage(), c.Description())
		if specsVerbose {
			fmt.Fprintf(w, "\t%s\t\n", m.Pattern())
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d command spec(s) failed to compile", failed)
	}
	return nil
}
