package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/lockerindex/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose       bool
		jsonOutput    bool
		lockerTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the index directory, locker and datastore",
		Long: `Run environment checks: index directory permissions and free space,
file descriptor limit, index lock, locker reachability and datastore.

Exits non-zero when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			checker := preflight.New(
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose),
				preflight.WithLockerTimeout(lockerTimeout),
			)
			results := checker.RunAll(cmd.Context(), preflight.Targets{
				IndexPath:     cfg.Index.Path,
				DatastorePath: cfg.Datastore.Path,
				LockerURL:     cfg.Locker.BaseURL,
			})

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("system check failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().DurationVar(&lockerTimeout, "timeout", preflight.DefaultLockerTimeout, "Locker probe timeout")

	return cmd
}
