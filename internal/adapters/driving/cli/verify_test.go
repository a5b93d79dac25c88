package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func TestVerifyCmd_Healthy(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"verify"})

	require.NoError(t, rootCmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "Collection kb")
	assert.Contains(t, out, "points:      42")
	assert.Contains(t, out, "vector size: 768")
	assert.NotContains(t, out, "empty")
}

func TestVerifyCmd_WarnsWhenEmpty(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.search.health.PointCount = 0

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"verify"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "Collection is empty")
}

func TestVerifyCmd_Missing(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.search.health = domain.CollectionHealth{Name: "kb", Error: "not found: collection kb"}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"verify"})

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection kb is not healthy")
	assert.Contains(t, buf.String(), "not found: collection kb")
}

func TestVerifyCmd_RunsChecks(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	var ran []string
	services.Checks = []Check{
		{Name: "embedding gateway", Run: func(context.Context) error { ran = append(ran, "embedding"); return nil }},
		{Name: "lock backend", Run: func(context.Context) error { ran = append(ran, "lock"); return nil }},
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"verify"})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, []string{"embedding", "lock"}, ran)
	assert.Contains(t, buf.String(), "embedding gateway")
	assert.Contains(t, buf.String(), "lock backend")
}

func TestVerifyCmd_FailedCheck(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	services.Checks = []Check{
		{Name: "embedding gateway", Run: func(context.Context) error { return errors.New("connection refused") }},
		{Name: "lock backend", Run: func(context.Context) error { return nil }},
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"verify"})

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "checks failed: embedding gateway")
	assert.Contains(t, buf.String(), "embedding gateway: connection refused")
	assert.Contains(t, buf.String(), "Collection kb", "collection is still reported")
}

func TestSetupCmd(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"setup", "--recreate"})

	require.NoError(t, rootCmd.Execute())
	assert.True(t, ts.ingestion.recreated)
	assert.Contains(t, buf.String(), "Collection kb ready: 768 dimensions, Cosine distance")
}
