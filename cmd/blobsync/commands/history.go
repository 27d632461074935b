package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/datallboy/blobsync/internal/infra/config"
	"github.com/datallboy/blobsync/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sync runs",
	Long: `Show the most recent runs recorded by the sqlite state backend.

Runs are only recorded when transfer.state_backend is "sqlite".`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	appCtx, err := bootstrap()
	if err != nil {
		return err
	}
	cfg := appCtx.Config

	if cfg.Transfer.StateBackend != config.StateBackendSQLite {
		return fmt.Errorf("run history needs transfer.state_backend=%q (got %q)",
			config.StateBackendSQLite, cfg.Transfer.StateBackend)
	}

	db, err := store.NewPersistentStore(cfg.Transfer.StatePath)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.RecentRuns(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FINISHED\tMODE\tNAME\tBLOCKS\tSENT\tCOMMITTED\tELAPSED\tID")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%v\t%s\t%s\n",
			humanize.Time(r.FinishedAt), r.Mode, r.Name, r.Transferred, r.Blocks,
			humanize.Bytes(uint64(r.Bytes)), r.Committed, r.Elapsed.Round(time.Millisecond), r.ID)
	}
	return w.Flush()
}
