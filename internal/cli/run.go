package cli

import (
	"github.com/spf13/cobra"

	"github.com/katasec/dstream-rowwatch/ingester"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every configured watcher until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return ingester.New(cfg).Start(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
