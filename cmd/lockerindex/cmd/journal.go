package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/lockerindex/internal/datastore"
	"github.com/Aman-CERP/lockerindex/internal/output"
)

func newJournalCmd() *cobra.Command {
	var since int64

	cmd := &cobra.Command{
		Use:   "journal [collection]",
		Short: "Print journaled records",
		Long: `Print journaled records of a collection as JSON lines, oldest first.

Without a collection, list the collections that have records. The people
and statuses subcommands read the friends, followers and timeline
collections.`,
		Example: `  lockerindex journal
  lockerindex journal places
  lockerindex journal contacts --since 1700000000000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withJournal(func(store *datastore.Store) error {
				if len(args) == 0 {
					collections, err := store.Collections(ctx)
					if err != nil {
						return err
					}
					out := output.New(cmd.OutOrStdout())
					for _, c := range collections {
						out.Status("", c)
					}
					return nil
				}

				records, err := store.Since(ctx, args[0], since)
				if err != nil {
					return err
				}
				return encodeLines(cmd.OutOrStdout(), records)
			})
		},
	}

	cmd.Flags().Int64Var(&since, "since", -1, "Only records journaled after this Unix time in milliseconds")

	cmd.AddCommand(newJournalPeopleCmd())
	cmd.AddCommand(newJournalStatusesCmd())

	return cmd
}

// withJournal opens the datastore for the duration of fn.
func withJournal(fn func(store *datastore.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openJournal(cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("journaling is disabled (datastore.path is empty)")
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func encodeLines[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

func newJournalPeopleCmd() *cobra.Command {
	var (
		since   int64
		current bool
	)

	cmd := &cobra.Command{
		Use:   "people [friends|followers]",
		Short: "Print journaled friends or followers",
		Long: `Print the people journal of friends or followers as JSON lines, oldest
first. With --current, print each person's current profile instead.

Without a type, print every friend and follower entry as one JSON object.`,
		Example: `  lockerindex journal people
  lockerindex journal people friends --since 1700000000000
  lockerindex journal people followers --current`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			return withJournal(func(store *datastore.Store) error {
				if len(args) == 0 {
					contacts, err := store.GetAllContacts(ctx)
					if err != nil {
						return err
					}
					enc := json.NewEncoder(w)
					enc.SetIndent("", "  ")
					return enc.Encode(contacts)
				}
				if current {
					people, err := store.GetPeopleCurrent(ctx, args[0])
					if err != nil {
						return err
					}
					return encodeLines(w, people)
				}
				records, err := store.GetPeople(ctx, args[0], since)
				if err != nil {
					return err
				}
				return encodeLines(w, records)
			})
		},
	}

	cmd.Flags().Int64Var(&since, "since", -1, "Only entries journaled after this Unix time in milliseconds")
	cmd.Flags().BoolVar(&current, "current", false, "Print current profiles instead of the journal")

	return cmd
}

func newJournalStatusesCmd() *cobra.Command {
	var since int64

	cmd := &cobra.Command{
		Use:       "statuses <home_timeline|user_timeline|mentions>",
		Short:     "Print journaled statuses of a timeline",
		Long:      `Print the statuses of a timeline as JSON lines, oldest first by creation time.`,
		Example:   `  lockerindex journal statuses mentions --since 1700000000000`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{datastore.HomeTimeline, datastore.UserTimeline, datastore.Mentions},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withJournal(func(store *datastore.Store) error {
				records, err := store.GetStatuses(ctx, args[0], since)
				if err != nil {
					return err
				}
				return encodeLines(cmd.OutOrStdout(), records)
			})
		},
	}

	cmd.Flags().Int64Var(&since, "since", -1, "Only statuses created after this Unix time in milliseconds")

	return cmd
}
