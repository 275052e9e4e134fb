package lock

import (
	"time"

	"github.com/spf13/cobra"
)

// Actions defines scope lock operations.
type Actions interface {
	Run(cmd *cobra.Command, args []string) error
	Status(cmd *cobra.Command, args []string) error
	Wait(cmd *cobra.Command, args []string) error
	Bench(cmd *cobra.Command, args []string) error
}

// Commands builds the scope lock command set.
func Commands(h Actions) []*cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [flags] SCOPE... -- COMMAND [ARG...]",
		Short: "Run a command while holding the lock on a scope",
		Args:  cobra.MinimumNArgs(2), //nolint:mnd
		RunE:  h.Run,
	}
	runCmd.Flags().Duration("timeout", 0, "give up if the lock is not acquired within this duration (0 waits forever)")

	statusCmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"ps"},
		Short:   "List current lock holders",
		RunE:    h.Status,
	}
	statusCmd.Flags().Bool("json", false, "always print JSON")

	waitCmd := &cobra.Command{
		Use:   "wait [flags] SCOPE...",
		Short: "Block until nobody holds the scope",
		Args:  cobra.MinimumNArgs(1),
		RunE:  h.Wait,
	}
	waitCmd.Flags().Duration("timeout", 0, "give up after this duration (0 waits forever)")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Contend on in-process scopes and verify ordering and exclusion",
		RunE:  h.Bench,
	}
	benchCmd.Flags().Int("goroutines", 64, "acquirers per scope") //nolint:mnd
	benchCmd.Flags().Int("scopes", 4, "independent scopes")      //nolint:mnd
	benchCmd.Flags().Duration("hold", 100*time.Microsecond, "time each acquirer holds the lock")
	benchCmd.Flags().Bool("metrics", false, "print Prometheus metrics after the run")
	benchCmd.Flags().Bool("progress", false, "report per-scope progress on stderr")

	return []*cobra.Command{runCmd, statusCmd, waitCmd, benchCmd}
}
