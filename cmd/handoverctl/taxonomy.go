package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"handover/internal/app"
)

func newTaxonomyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Inspect classification rule tables",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [file]",
		Short: "Parse and validate a taxonomy file (embedded default when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			tax, err := app.LoadTaxonomy(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "taxonomy %s ok: %d buckets, %d domains, %d entity kinds, %d risk tags\n",
				tax.Version, len(tax.Buckets), len(tax.Domains), len(tax.Entities), len(tax.RiskTags))
			return nil
		},
	})
	return cmd
}
