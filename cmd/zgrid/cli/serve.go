package cli

import (
	"github.com/spf13/cobra"

	"zgrid/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the grid coordinator",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return daemon.Run(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
