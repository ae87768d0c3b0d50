package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sdshare/sdshare/internal/config"
	"github.com/sdshare/sdshare/internal/feed"
	"github.com/sdshare/sdshare/internal/query"
)

var checkCmd = &cobra.Command{
	Use:     "check",
	GroupID: "tools",
	Short:   "Validate the collections file and read every collection",
	Long: `Load the collections file, open every source and fetch the first page
of fragments from each collection.

Exits non-zero when the file is invalid or any collection cannot be read.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.FromViper(v)

		reg, err := loadRegistry(settings)
		if err != nil {
			return err
		}
		defer reg.Close()

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "COLLECTION\tFEEDS\tFIRST PAGE\tSTATUS")

		var errs []error
		for _, c := range reg.Collections() {
			page, err := c.FetchPage(cmd.Context(), feed.PageRequest{})
			if err != nil {
				fmt.Fprintf(tw, "%s\t%d\t-\t%s: %v\n", c.ID, len(c.Feeds), failure(err), err)
				errs = append(errs, fmt.Errorf("collection %s: %w", c.ID, err))
				continue
			}
			more := ""
			if page.HasNext {
				more = "+"
			}
			fmt.Fprintf(tw, "%s\t%d\t%d%s\tok\n", c.ID, len(c.Feeds), len(page.Fragments), more)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		return errors.Join(errs...)
	},
}

// failure names the kind of error for the status column.
func failure(err error) string {
	switch {
	case query.IsPermanent(err):
		return "query error"
	case query.IsRetryable(err):
		return "unreachable"
	default:
		return "error"
	}
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
