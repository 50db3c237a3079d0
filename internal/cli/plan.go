package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/katasec/dstream-rowwatch/ingester"
	"github.com/katasec/dstream-rowwatch/internal/cdc/poller"
	"github.com/katasec/dstream-rowwatch/internal/config"
	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

var planWatermark int64

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the statements each watcher will run",
	Long: `Print the bootstrap, incremental and full statements of every watcher without
connecting to the database. Use --watermark to see the incremental statement for
a given highest identity.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		wm, has := cdc.Identity(planWatermark), cmd.Flags().Changed("watermark")
		return writePlan(cmd.OutOrStdout(), cfg, wm, has)
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().Int64Var(&planWatermark, "watermark", 0, "highest identity already seen")
}

func writePlan(w io.Writer, cfg *config.Config, wm cdc.Identity, hasWatermark bool) error {
	for _, wc := range cfg.Watchers {
		pcfg, err := ingester.WatcherConfig(wc)
		if err != nil {
			return err
		}
		planner := poller.PlannerFor(pcfg, cfg.Database.Driver)

		maxStmt, err := planner.MaxIdentity()
		if err != nil {
			return err
		}
		incStmt, err := planner.Incremental(wm, hasWatermark)
		if err != nil {
			return err
		}
		fullStmt, err := planner.Full()
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "watcher %q (id %s, every %s, updates=%t, deletes=%t)\n",
			wc.Name, pcfg.IDField, pcfg.PollInterval, pcfg.TrackUpdates, pcfg.TrackDeletes)
		writeStatement(w, "bootstrap", maxStmt)
		writeStatement(w, "incremental", incStmt)
		if pcfg.TrackUpdates || pcfg.TrackDeletes {
			writeStatement(w, "full", fullStmt)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func writeStatement(w io.Writer, label string, stmt cdc.Statement) {
	fmt.Fprintf(w, "  %-12s %s\n", label+":", stmt.SQL)
	if len(stmt.Args) > 0 {
		fmt.Fprintf(w, "  %-12s %v\n", "args:", stmt.Args)
	}
}
