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

func TestIngestCmd_Flags(t *testing.T) {
	assert.Equal(t, "ingest [file]", ingestCmd.Use)

	recreate := ingestCmd.Flags().Lookup("recreate")
	require.NotNil(t, recreate)
	assert.Equal(t, "false", recreate.DefValue)

	verify := ingestCmd.Flags().Lookup("verify-query")
	require.NotNil(t, verify)
	assert.Equal(t, "", verify.DefValue)
}

func TestIngestCmd_IngestsFile(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"ingest", "speeches.jsonl"})

	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, "speeches.jsonl", ts.path)
	assert.Equal(t, 1, ts.ingestion.ensureCall)
	assert.False(t, ts.ingestion.recreated)
	assert.Equal(t, 2, ts.ingestion.ingested)
	out := buf.String()
	assert.Contains(t, out, "Loaded 2 documents from speeches.jsonl")
	assert.Contains(t, out, "Processed 2 documents into 4 chunks")
	assert.Empty(t, ts.search.lastQuery, "no sample search without --verify-query")
}

func TestIngestCmd_RecreateAndVerify(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"ingest", "--recreate", "--verify-query", "inflation", "speeches.jsonl"})

	require.NoError(t, rootCmd.Execute())

	assert.True(t, ts.ingestion.recreated)
	assert.Equal(t, "inflation", ts.search.lastQuery)
	assert.Equal(t, 1, ts.search.lastLimit)
	assert.Contains(t, buf.String(), "chunk 1/3")
	assert.Contains(t, buf.String(), "Economic Outlook")
}

func TestIngestCmd_ReportsFailures(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.ingestion.report = &domain.IngestionReport{
		DocumentsProcessed: 1,
		ChunksCreated:      2,
		Failures: []domain.DocumentFailure{
			{DocumentID: "speech-2", Error: "embedding unavailable", Attempts: 4},
			{Error: "validation error: document id is required"},
		},
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ingest", "speeches.jsonl"})

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 2 documents failed")
	assert.Contains(t, buf.String(), "speech-2 (after 4 attempts): embedding unavailable")
	assert.Contains(t, buf.String(), "(no id) (after 0 attempts)")
}

func TestIngestCmd_Cancelled(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.ingestion.report = &domain.IngestionReport{DocumentsProcessed: 1, Cancelled: true}
	ts.ingestion.err = context.Canceled

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ingest", "speeches.jsonl"})

	err := rootCmd.Execute()

	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, buf.String(), "Run cancelled")
}

func TestIngestCmd_LoadError(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.source.err = errMockLoad

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ingest", "missing.jsonl"})

	err := rootCmd.Execute()

	assert.ErrorIs(t, err, errMockLoad)
	assert.Zero(t, ts.ingestion.ingested)
}

func TestIngestCmd_CollectionError(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.ingestion.ensureErr = errors.Join(domain.ErrStore, errors.New("connection refused"))

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ingest", "speeches.jsonl"})

	err := rootCmd.Execute()

	assert.ErrorIs(t, err, domain.ErrStore)
	assert.Empty(t, ts.path, "source is not opened when the collection cannot be prepared")
}
