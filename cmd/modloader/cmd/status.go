package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command
func NewStatusCommand(root *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Load the module set and print a status snapshot",
		Long: `Loads the eager modules (or every enabled module with --all), prints the
loader status as JSON and shuts the modules down again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, _, logger, err := setup(root)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer l.Shutdown(context.Background())

			if all {
				l.LoadAllEnabled(cmd.Context())
			} else {
				l.LoadEager(cmd.Context())
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(l.Status())
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Load lazy modules as well")
	return cmd
}
