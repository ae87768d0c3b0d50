package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sdshare/sdshare/internal/config"
	"github.com/sdshare/sdshare/internal/feed"
)

var fragmentsCmd = &cobra.Command{
	Use:     "fragments <collection>",
	GroupID: "tools",
	Short:   "List fragments updated since a time",
	Long: `Print the fragments of a collection as tab-separated id, updated and
subject URI columns, one page at a time, exactly as /fragments serves them.

With --all the continuation of each page is followed until the last page.

Example usage:
  sdshare fragments people
  sdshare fragments people --since 2020-01-01T00:00:00Z --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.FromViper(v)
		since, _ := cmd.Flags().GetString("since")
		after, _ := cmd.Flags().GetString("after")
		all, _ := cmd.Flags().GetBool("all")

		reg, err := loadRegistry(settings)
		if err != nil {
			return err
		}
		defer reg.Close()

		c, err := collectionArg(reg, args)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer tw.Flush()

		req := feed.PageRequest{Since: since, After: after}
		for pages := 1; ; pages++ {
			page, err := c.FetchPage(cmd.Context(), req)
			if err != nil {
				return err
			}
			for _, f := range page.Fragments {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", f.ID, f.Updated, f.URI)
			}
			if !page.HasNext {
				return nil
			}
			if !all {
				fmt.Fprintf(tw, "# next: ?%s\n", page.Next.Encode())
				return nil
			}
			req = feed.PageRequest{Since: page.Next.Get("since"), After: page.Next.Get("after")}
			log.WithField("page", pages).Debug("Following continuation")
		}
	},
}

func init() {
	fragmentsCmd.Flags().String("since", "", "Only fragments updated at or after this time (RFC 3339)")
	fragmentsCmd.Flags().String("after", "", "Continue after this id within the since time")
	fragmentsCmd.Flags().Bool("all", false, "Follow continuations to the last page")
	rootCmd.AddCommand(fragmentsCmd)
}
