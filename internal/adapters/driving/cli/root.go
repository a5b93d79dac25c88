// Package cli implements the sercha-rag command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/config"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Services are the application services the commands drive.
type Services struct {
	Ingestion driving.IngestionService
	Search    driving.SearchService
	// Source opens a document source for a path given on the command line
	Source func(path string) driven.DocumentSource
	// Checks probe external dependencies for the verify command
	Checks []Check
	Close  func() error
}

// Check is a named connectivity probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// ServiceBuilder wires Services from configuration.
type ServiceBuilder func(ctx context.Context, cfg *config.Config) (*Services, error)

var (
	version    = "dev"
	configPath string

	builder  ServiceBuilder
	services *Services
)

var rootCmd = &cobra.Command{
	Use:   "sercha-rag",
	Short: "Index documents into a vector store and search them",
	Long: `sercha-rag chunks documents, embeds the chunks and stores them in a vector
collection. The same collection answers semantic search from the command line
or from AI agents over MCP.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (default $SERCHA_RAG_CONFIG)")
}

// Execute runs the root command. Services are built on first use.
func Execute(ctx context.Context, v string, b ServiceBuilder) error {
	if v != "" {
		version = v
	}
	builder = b
	defer closeServices()
	return rootCmd.ExecuteContext(ctx)
}

// loadServices returns the wired services, building them on first use.
func loadServices(cmd *cobra.Command) (*Services, error) {
	if services != nil {
		return services, nil
	}
	if builder == nil {
		return nil, errors.New("services not configured")
	}

	path := configPath
	if path == "" {
		path = os.Getenv("SERCHA_RAG_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	s, err := builder(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}
	services = s
	return services, nil
}

func closeServices() {
	if services != nil && services.Close != nil {
		_ = services.Close()
	}
	services = nil
}
