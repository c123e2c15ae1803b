package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/lockerindex/internal/coordinator"
	"github.com/Aman-CERP/lockerindex/internal/output"
)

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete the index directory",
		Long: `Delete the configured index directory. The journal is kept; run
'lockerindex gather' to rebuild the index.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			lock, err := lockIndex(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			coord := coordinator.New()
			defer func() { _ = coord.Close() }()
			if err := coord.SetIndexPath(cfg.Index.Path); err != nil {
				return err
			}
			if err := coord.ResetIndex(); err != nil {
				return err
			}

			output.New(cmd.OutOrStdout()).Successf("Removed index %s", cfg.Index.Path)
			return nil
		},
	}
}
