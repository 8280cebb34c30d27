package docpipe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/docpipe/ai"
	"github.com/poiesic/docpipe/ai/mock"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase(t *testing.T) {
	t.Run("create new database", func(t *testing.T) {
		tmpDir := filepath.Join(t.TempDir(), "test_db")
		db, err := NewDatabase(tmpDir)
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		// Verify components are initialized
		assert.NotNil(t, db.Store())
		assert.NotNil(t, db.Jobs())
		assert.NotNil(t, db.Embedder())
		assert.Equal(t, resilience.StateClosed, db.Breaker().State())
	})

	t.Run("error with invalid path", func(t *testing.T) {
		// Try to create a database at a file path instead of directory
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		err := os.WriteFile(tmpFile, []byte("test"), 0644)
		require.NoError(t, err)

		db, err := NewDatabase(tmpFile)
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("invalid ai config", func(t *testing.T) {
		db, err := NewDatabase("", WithInMemory(), WithAIConfig(ai.NewConfig(ai.WithEmbeddingModel(""))))
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("invalid breaker config", func(t *testing.T) {
		db, err := NewDatabase("", WithInMemory(), WithBreakerConfig(resilience.BreakerConfig{}))
		assert.ErrorIs(t, err, resilience.ErrInvalidBreakerConfig)
		assert.Nil(t, db)
	})
}

func TestDatabase_Close(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := NewDatabase(tmpDir)
	require.NoError(t, err)
	require.NotNil(t, db)

	// Close the database
	err = db.Close()
	assert.NoError(t, err)
}

func TestDatabase_IngestEndToEnd(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	db, err := NewDatabase("", WithInMemory(), WithEmbedder(embedder))
	require.NoError(t, err)
	defer db.Close()

	pipeline, err := db.NewPipeline()
	require.NoError(t, err)
	defer pipeline.Release()

	assert.Same(t, db.Breaker(), pipeline.Breaker())

	ctx := context.Background()
	result, err := pipeline.ProcessContent(ctx, "# Intro\nHello there.\n\n# Details\nMore text.",
		"notes.md", core.DocumentTypeMarkdown, "notes")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, result.Status)

	job, err := db.Jobs().GetJob(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, job.Status)
	assert.Equal(t, result.ChunkCount, job.ChunkCount)

	chunks, err := db.Jobs().GetChunks(ctx, "notes")
	require.NoError(t, err)
	assert.Len(t, chunks, result.ChunkCount)
	assert.Equal(t, result.ChunkCount, embedder.CallCount())
}

func TestDatabase_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := NewDatabase(dir, WithEmbedder(mock.NewMockEmbedder()))
	require.NoError(t, err)
	pipeline, err := db.NewPipeline()
	require.NoError(t, err)
	_, err = pipeline.ProcessContent(ctx, `[{"question":"Why?","answer":"Because."}]`,
		"faq.json", core.DocumentTypeRecords, "faq")
	require.NoError(t, err)
	pipeline.Release()
	require.NoError(t, db.Close())

	reopened, err := NewDatabase(dir, WithEmbedder(mock.NewMockEmbedder()))
	require.NoError(t, err)
	defer reopened.Close()

	jobs, err := reopened.Jobs().ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "faq", jobs[0].DocumentID)
	assert.Equal(t, core.StatusCompleted, jobs[0].Status)
}
