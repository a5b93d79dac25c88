package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var (
	ingestRecreate    bool
	ingestVerifyQuery string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Index a JSONL file of documents",
	Long: `Reads one JSON document per line, splits each body into overlapping chunks,
embeds them and upserts them into the collection. Re-ingesting a document
replaces its chunks and removes any that no longer exist.

Use --recreate to drop the collection first, and --verify-query to run a
sample search once ingestion finishes.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestRecreate, "recreate", false, "drop and recreate the collection before ingesting")
	ingestCmd.Flags().StringVar(&ingestVerifyQuery, "verify-query", "", "run this query after ingestion and print the top hit")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	s, err := loadServices(cmd)
	if err != nil {
		return err
	}
	if s.Ingestion == nil || s.Source == nil {
		return errors.New("ingestion service not configured")
	}
	ctx := cmd.Context()

	info, err := s.Ingestion.EnsureCollection(ctx, ingestRecreate)
	if err != nil {
		return fmt.Errorf("prepare collection: %w", err)
	}
	cmd.Printf("Collection %s ready (%d points)\n", info.Name, info.PointCount)

	docs, err := s.Source(args[0]).Load(ctx)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	cmd.Printf("Loaded %d documents from %s\n", len(docs), args[0])

	report, err := s.Ingestion.Ingest(ctx, docs)
	if report != nil {
		printReport(cmd, report)
	}
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	if ingestVerifyQuery != "" && s.Search != nil {
		if err := printSampleSearch(cmd, s, ingestVerifyQuery); err != nil {
			return err
		}
	}

	if report != nil && report.Failed() > 0 {
		return fmt.Errorf("%d of %d documents failed", report.Failed(), len(docs))
	}
	return nil
}

func printReport(cmd *cobra.Command, r *domain.IngestionReport) {
	ok := color.New(color.FgGreen, color.Bold).SprintFunc()
	bad := color.New(color.FgRed, color.Bold).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()

	cmd.Println()
	cmd.Printf("%s Processed %d documents into %d chunks in %s\n",
		ok("✓"), r.DocumentsProcessed, r.ChunksCreated, r.Duration.Round(time.Millisecond))
	if r.DocumentsSkipped > 0 {
		cmd.Printf("%s Skipped %d documents\n", warn("!"), r.DocumentsSkipped)
	}
	if r.Cancelled {
		cmd.Printf("%s Run cancelled before all documents were processed\n", warn("!"))
	}
	if r.Failed() > 0 {
		cmd.Printf("%s %d documents failed:\n", bad("✗"), r.Failed())
		for _, f := range r.Failures {
			id := f.DocumentID
			if id == "" {
				id = "(no id)"
			}
			cmd.Printf("    %s (after %d attempts): %s\n", id, f.Attempts, f.Error)
		}
	}
}

func printSampleSearch(cmd *cobra.Command, s *Services, query string) error {
	results, err := s.Search.Search(cmd.Context(), query, 1)
	if err != nil {
		return fmt.Errorf("verify query: %w", err)
	}

	cmd.Println()
	cmd.Printf("Sample search: %q\n", query)
	if len(results) == 0 {
		cmd.Println("  No results found.")
		return nil
	}
	top := results[0]
	cmd.Printf("  %s (%.3f), chunk %d/%d\n", displayTitle(top), top.Score, top.ChunkIndex+1, top.TotalChunks)
	cmd.Printf("  %s\n", snippet(top.Text, 200))
	return nil
}
