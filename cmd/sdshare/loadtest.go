package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sdshare/sdshare/internal/config"
	"github.com/sdshare/sdshare/internal/loadtest"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest <collection>",
	GroupID: "tools",
	Short:   "Walk a collection's fragment feed from many concurrent clients",
	Long: `Simulate concurrent SDShare clients catching up on a collection.

Every client follows the fragment feed's continuations from --since to the
last page. Page latencies are reported and all walks are checked to have
served the same fragments in the same order.

Example usage:
  sdshare loadtest items --clients 50 --walks 5`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.FromViper(v)
		clients, _ := cmd.Flags().GetInt("clients")
		walks, _ := cmd.Flags().GetInt("walks")
		since, _ := cmd.Flags().GetString("since")

		reg, err := loadRegistry(settings)
		if err != nil {
			return err
		}
		defer reg.Close()

		c, err := collectionArg(reg, args)
		if err != nil {
			return err
		}

		fmt.Printf("Walking %s with %d clients, %d walks each...\n\n", c.ID, clients, walks)
		stats, err := loadtest.Run(cmd.Context(), c, loadtest.Options{Clients: clients, Walks: walks, Since: since})
		if stats != nil {
			stats.Print(os.Stdout)
		}
		return err
	},
}

func init() {
	loadtestCmd.Flags().Int("clients", 10, "Concurrent clients")
	loadtestCmd.Flags().Int("walks", 1, "Walks per client")
	loadtestCmd.Flags().String("since", "", "Start every walk at this time (RFC 3339)")
	rootCmd.AddCommand(loadtestCmd)
}
