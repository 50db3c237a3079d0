package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/katasec/dstream-rowwatch/internal/locking"
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "List watchers currently locked by a running instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Lock == nil {
			return fmt.Errorf("no lock block in %s", cfgFile)
		}
		factory, err := locking.NewLockerFactory(cfg.Lock.Type, cfg.Lock.ConnectionString,
			cfg.Lock.ContainerName, cfg.Database.ConnectionString)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(cfg.Watchers))
		for _, w := range cfg.Watchers {
			names = append(names, w.Name)
		}
		locked, err := factory.GetLockedWatchers(cmd.Context(), names)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(locked) == 0 {
			fmt.Fprintln(out, "No watchers are locked")
			return nil
		}
		for _, name := range locked {
			fmt.Fprintf(out, "%s\t%s\n", name, factory.GetLockName(name))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(locksCmd)
}
