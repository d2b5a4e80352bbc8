package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilianp07/thermompc/app/plugins"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the built-in backend types per registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := plugins.Catalog()
		for _, k := range plugins.Kinds {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", k, strings.Join(cat[k], ", ")); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}
