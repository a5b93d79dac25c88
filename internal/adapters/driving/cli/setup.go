package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var setupRecreate bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the collection",
	Long: `Creates the collection with the embedding model's vector size if it does not
exist. With --recreate the collection and all its points are dropped first.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().BoolVar(&setupRecreate, "recreate", false, "drop the collection before creating it")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, _ []string) error {
	s, err := loadServices(cmd)
	if err != nil {
		return err
	}
	if s.Ingestion == nil {
		return errors.New("ingestion service not configured")
	}

	info, err := s.Ingestion.EnsureCollection(cmd.Context(), setupRecreate)
	if err != nil {
		return fmt.Errorf("setup collection: %w", err)
	}
	cmd.Printf("Collection %s ready: %d dimensions, %s distance, %d points\n",
		info.Name, info.VectorSize, info.Distance, info.PointCount)
	return nil
}
