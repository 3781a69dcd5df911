package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newImportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "import <pocket-export.csv>",
		Aliases: []string{"pocket"},
		Short:   "Import a Pocket CSV export",
		Long: `Reads a Pocket CSV export (title, url, time_added, tags, status) and adds every
article to the database as pending. Re-importing updates titles, tags and read status
without touching crawl results.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := c.app.ImporterService.ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rows: %d new, %d updated, %d unchanged, %d skipped\n",
				summary.Rows, summary.Imported, summary.Updated, summary.Unchanged, summary.Skipped)
			return nil
		},
	}
}

func newCrawlCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Fetch pending articles and extract their text",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := c.app.CrawlerService.Run(cmd.Context(), limit)
			fmt.Fprintf(cmd.OutOrStdout(), "Crawled %d articles: %d fetched, %d failed, %d retries, %d skipped, %d left pending\n",
				summary.Candidates, summary.Fetched, summary.Failed, summary.Retried, summary.Skipped, summary.Aborted)
			return err
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Crawl at most N pending articles (0 = all)")
	return cmd
}

func newEmbedCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Chunk and embed fetched articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := c.app.EmbeddingService(cmd.Context())
			if err != nil {
				return err
			}

			summary, err := service.Run(cmd.Context(), limit)
			fmt.Fprintf(cmd.OutOrStdout(), "Embedded %d of %d articles (%d chunks), %d failed\n",
				summary.Embedded, summary.Candidates, summary.Chunks, summary.Failed)
			return err
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Embed at most N articles (0 = all)")
	return cmd
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show how many articles are in each pipeline stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := c.app.Storage.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), stats.String())
			return nil
		},
	}
}
