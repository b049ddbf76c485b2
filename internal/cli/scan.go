package cli

import (
	"github.com/spf13/cobra"

	"dealwatch/internal/app"
)

var scanBroadcast bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single discovery cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Scan(cmd.Context(), app.ScanOptions{
			Broadcast: scanBroadcast,
		})
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanBroadcast, "broadcast", false, "Broadcast discovered deals to destinations")
}
