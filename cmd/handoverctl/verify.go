package main

import (
	"errors"

	"github.com/spf13/cobra"

	"handover/internal/model"
)

var errExportInvalid = errors.New("export failed verification")

func newVerifyExportCmd(opts *options) *cobra.Command {
	var actor model.Actor
	cmd := &cobra.Command{
		Use:   "verify-export <export-id>",
		Short: "Re-render an export and compare hashes and stored checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Exports.Verify(cmd.Context(), actor, args[0])
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Valid {
				return errExportInvalid
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&actor.TenantID, "tenant", "", "Tenant owning the export")
	cmd.Flags().StringVar(&actor.UserID, "user", "", "User performing the check")
	cmd.Flags().StringVar(&actor.Role, "role", "", "Role recorded for the check")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
