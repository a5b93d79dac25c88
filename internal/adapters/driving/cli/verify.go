package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check connectivity and that the collection holds data",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	s, err := loadServices(cmd)
	if err != nil {
		return err
	}
	if s.Search == nil {
		return errors.New("search service not configured")
	}

	ok := color.New(color.FgGreen, color.Bold).SprintFunc()
	bad := color.New(color.FgRed, color.Bold).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()

	var failed []string
	for _, check := range s.Checks {
		if err := check.Run(cmd.Context()); err != nil {
			cmd.Printf("%s %s: %v\n", bad("✗"), check.Name, err)
			failed = append(failed, check.Name)
			continue
		}
		cmd.Printf("%s %s\n", ok("✓"), check.Name)
	}

	health := s.Search.VerifyCollection(cmd.Context())
	if !health.Exists {
		cmd.Printf("%s Collection %s unavailable: %s\n", bad("✗"), health.Name, health.Error)
		return fmt.Errorf("collection %s is not healthy", health.Name)
	}

	cmd.Printf("%s Collection %s\n", ok("✓"), health.Name)
	cmd.Printf("    points:      %d\n", health.PointCount)
	cmd.Printf("    vector size: %d\n", health.VectorSize)
	cmd.Printf("    distance:    %s\n", health.Distance)
	if health.PointCount == 0 {
		cmd.Printf("%s Collection is empty, run ingest first\n", warn("!"))
	}

	if len(failed) > 0 {
		return fmt.Errorf("checks failed: %s", strings.Join(failed, ", "))
	}
	return nil
}
