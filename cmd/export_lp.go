package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var lpOut string

var exportLPCmd = &cobra.Command{
	Use:   "export-lp",
	Short: "Compose the current horizon and write it in CPLEX LP format",
	RunE:  exportLP,
}

func init() {
	exportLPCmd.Flags().StringVarP(&lpOut, "out", "o", "-", "output file, - for stdout")
	rootCmd.AddCommand(exportLPCmd)
}

func exportLP(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer closeService(svc)
	h, err := svc.Controller.Compose(context.Background())
	if err != nil {
		return fmt.Errorf("compose horizon: %w", err)
	}
	var w io.Writer = cmd.OutOrStdout()
	if lpOut != "-" {
		f, err := os.Create(lpOut)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := h.Model.WriteLP(w); err != nil {
		return fmt.Errorf("write lp: %w", err)
	}
	return nil
}
