package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Vogeltak/reading-addiction/internal/models"
	"github.com/Vogeltak/reading-addiction/internal/services/exporter"
)

func newHistogramCmd(c *cli) *cobra.Command {
	var format, output, by string

	cmd := &cobra.Command{
		Use:   "histogram",
		Short: "Print crawl outcome counts",
		Long: `Counts settled articles by HTTP status code of the last response, with 0 for dead links
(no response at all). With --by kind, counts per classification instead: fetched, timeout,
connection_error, http_<code>, unsupported_content_type and extraction_empty.`,
		Annotations: map[string]string{annotationDataOutput: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := exporter.ParseFormat(format, exporter.FormatJSON, exporter.FormatTSV)
			if err != nil {
				return err
			}
			grouping, err := models.ParseHistogramGrouping(by)
			if err != nil {
				return err
			}
			return writeOutput(cmd, output, func(w io.Writer) error {
				return c.app.ExporterService.Histogram(cmd.Context(), w, grouping, f)
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", string(exporter.FormatJSON), "Output format: json or tsv")
	cmd.Flags().StringVar(&by, "by", string(models.GroupByStatus), "Bucket by HTTP status or by classification: status or kind")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func newClusterCmd(c *cli) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:         "cluster",
		Short:       "Export document vectors for clustering",
		Long:        `Writes {"url", "vector"} for every embedded article, one JSON object per line or as one JSON array.`,
		Annotations: map[string]string{annotationDataOutput: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := exporter.ParseFormat(format, exporter.FormatJSONL, exporter.FormatJSON)
			if err != nil {
				return err
			}
			return writeOutput(cmd, output, func(w io.Writer) error {
				count, err := c.app.ExporterService.Vectors(cmd.Context(), w, f)
				if err == nil {
					c.logger.Info().Int("vectors", count).Msg("Exported document vectors")
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", string(exporter.FormatJSONL), "Output format: jsonl or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

// writeOutput runs write against stdout, or against a temporary file renamed to path on success
func writeOutput(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(cmd.OutOrStdout())
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
