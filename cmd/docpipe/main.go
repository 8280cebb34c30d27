// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/poiesic/docpipe"
	"github.com/poiesic/docpipe/ai"
	"github.com/poiesic/docpipe/ai/openai"
	"github.com/poiesic/docpipe/chunking"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/ingestion"
	"github.com/poiesic/docpipe/progress"
	"github.com/poiesic/docpipe/resilience"
	"github.com/poiesic/docpipe/storage"
	"github.com/poiesic/docpipe/storage/badger"
	"github.com/urfave/cli/v2"
)

// newEmbedder builds the embedder used by the ingest command.
var newEmbedder = func(config *ai.Config) (ai.Embedder, error) {
	return openai.NewEmbedderWithLogger(config, slog.Default())
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "db",
		Aliases:  []string{"d"},
		Usage:    "Path to BadgerDB database directory",
		EnvVars:  []string{"DOCPIPE_DB"},
		Required: true,
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "docpipe",
		Usage: "Chunk, embed and store documents for retrieval",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"DOCPIPE_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file if it exists",
				Value: ".env",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Chunk, embed and store one or more documents",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.StringFlag{
						Name:    "embedding-host",
						Usage:   "Embedding service host URL",
						Value:   "http://localhost:11434/v1",
						EnvVars: []string{"DOCPIPE_EMBEDDING_HOST"},
					},
					&cli.StringFlag{
						Name:     "embedding-model",
						Usage:    "Embedding model name",
						EnvVars:  []string{"DOCPIPE_EMBEDDING_MODEL"},
						Required: true,
					},
					&cli.StringFlag{
						Name:    "api-token",
						Usage:   "API token for the embedding service",
						EnvVars: []string{"DOCPIPE_API_TOKEN"},
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "Document type (markdown, records, auto)",
						Value: "auto",
					},
					&cli.StringFlag{
						Name:  "doc-id",
						Usage: "Document id (single file only; a UUID is generated when empty)",
					},
					&cli.StringFlag{
						Name:    "owner",
						Usage:   "Owner recorded on the ingestion job",
						EnvVars: []string{"DOCPIPE_OWNER"},
					},
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "Target chunk length in characters",
						Value: 512,
					},
					&cli.IntFlag{
						Name:  "chunk-overlap",
						Usage: "Overlap between size-based chunks in characters",
						Value: 50,
					},
					&cli.BoolFlag{
						Name:  "no-header-chunking",
						Usage: "Split markdown by size instead of by header",
					},
					&cli.BoolFlag{
						Name:  "no-preserve-headers",
						Usage: "Do not repeat a section header in each of its sub-chunks",
					},
					&cli.BoolFlag{
						Name:  "no-grouping",
						Usage: "Chunk FAQ records one per chunk instead of grouping related items",
					},
					&cli.IntFlag{
						Name:  "max-depth",
						Usage: "Maximum depth reported for nested records",
						Value: 10,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to embed in each batch",
						Value: 10,
					},
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Concurrent embedding calls within a batch (0 = half the CPUs)",
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.Float64Flag{
						Name:    "rate-limit",
						Usage:   "Maximum embedding calls per second (0 = unlimited)",
						EnvVars: []string{"DOCPIPE_RATE_LIMIT"},
					},
					&cli.IntFlag{
						Name:  "cache-size",
						Usage: "Number of embeddings to cache in memory (0 = no cache)",
					},
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "Do not print progress",
					},
				},
			},
			{
				Name:      "status",
				Usage:     "Show the ingestion job of a document",
				ArgsUsage: "DOC-ID",
				Action:    statusCommand,
				Flags:     []cli.Flag{dbFlag()},
			},
			{
				Name:      "chunks",
				Usage:     "List the stored chunks of a document",
				ArgsUsage: "DOC-ID",
				Action:    chunksCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.BoolFlag{
						Name:  "full",
						Usage: "Print full chunk text",
					},
				},
			},
			{
				Name:   "jobs",
				Usage:  "List all ingestion jobs",
				Action: jobsCommand,
				Flags:  []cli.Flag{dbFlag()},
			},
		},
	}
}

func ingestCommand(c *cli.Context) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return fmt.Errorf("at least one file is required")
	}
	docID := c.String("doc-id")
	if docID != "" && len(files) > 1 {
		return fmt.Errorf("doc-id can only be used with a single file")
	}

	var docType core.DocumentType
	if t := c.String("type"); t != "auto" {
		var err error
		if docType, err = core.ParseDocumentType(t); err != nil {
			return err
		}
	}

	chunkCfg := chunking.NewConfig(
		chunking.WithChunkSize(c.Int("chunk-size")),
		chunking.WithChunkOverlap(c.Int("chunk-overlap")),
		chunking.WithChunkByHeaders(!c.Bool("no-header-chunking")),
		chunking.WithPreserveHeaders(!c.Bool("no-preserve-headers")),
		chunking.WithGroupRelatedItems(!c.Bool("no-grouping")),
		chunking.WithMaxDepth(c.Int("max-depth")),
	)
	if err := chunkCfg.Validate(); err != nil {
		return err
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxRetries = c.Int("max-retries")
	retryCfg.BaseDelay = c.Duration("retry-delay")
	if err := retryCfg.Validate(); err != nil {
		return err
	}

	// Create AI config
	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithAPIToken(c.String("api-token")),
		ai.WithCacheSize(c.Int("cache-size")),
	)
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid AI configuration: %w", err)
	}

	embedder, err := newEmbedder(aiConfig)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	embedder, err = ai.NewCachingEmbedder(embedder, aiConfig.CacheSize)
	if err != nil {
		return err
	}

	db, err := docpipe.NewDatabase(c.String("db"),
		docpipe.WithAIConfig(aiConfig),
		docpipe.WithEmbedder(embedder),
		docpipe.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	reporter := progress.Multi(progress.NewLogReporter(slog.Default()))
	if !c.Bool("quiet") {
		reporter = progress.Multi(progress.NewWriterReporter(c.App.ErrWriter), progress.NewLogReporter(slog.Default()))
	}

	opts := []ingestion.Option{
		ingestion.WithChunkingConfig(chunkCfg),
		ingestion.WithRetryConfig(retryCfg),
		ingestion.WithBatchSize(c.Int("batch-size")),
		ingestion.WithRateLimit(c.Float64("rate-limit"), 1),
		ingestion.WithReporter(reporter),
		ingestion.WithOwner(c.String("owner")),
	}
	if n := c.Int("pool-size"); n > 0 {
		opts = append(opts, ingestion.WithPoolSize(n))
	}
	pipeline, err := db.NewPipeline(opts...)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	var failures []error
	for _, file := range files {
		doc, err := loadDocument(file, docType, docID)
		if err != nil {
			failures = append(failures, err)
			fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", file, err)
			continue
		}

		result, err := pipeline.Process(ctx, doc)
		printResult(c.App.Writer, result)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", file, err))
		}
		if ctx.Err() != nil {
			break
		}
	}

	if len(failures) > 0 {
		return cli.Exit(errors.Join(failures...), 1)
	}
	return nil
}

// loadDocument reads file into a SourceDocument. An empty docType is
// inferred from the extension and an empty docID is generated.
func loadDocument(file string, docType core.DocumentType, docID string) (*core.SourceDocument, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	if docType == "" {
		if docType, err = core.DetectDocumentType(file); err != nil {
			return nil, err
		}
	}
	if docID == "" {
		docID = uuid.NewString()
	}
	return &core.SourceDocument{
		ID:       docID,
		Filename: filepath.Base(file),
		Type:     docType,
		Content:  string(content),
	}, nil
}

func printResult(w io.Writer, result *core.ProcessingResult) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%d chunks\t%d embeddings\n",
		result.DocumentID, result.Filename, result.Status, result.ChunkCount, result.EmbeddingCount)
}

// openRepository opens the store read-write for the inspection commands.
func openRepository(c *cli.Context) (*badger.ChunkRepository, func(), error) {
	backend, err := badger.OpenBackend(c.String("db"), false, badger.WithLogger(slog.Default()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	repo, err := badger.NewChunkRepository(backend)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return repo, func() {
		repo.Close()
		backend.Close()
	}, nil
}

func statusCommand(c *cli.Context) error {
	docID := c.Args().First()
	if docID == "" {
		return fmt.Errorf("document id is required")
	}
	repo, closeRepo, err := openRepository(c)
	if err != nil {
		return err
	}
	defer closeRepo()

	job, err := repo.GetJob(c.Context, docID)
	if errors.Is(err, storage.ErrNotFound) {
		return cli.Exit(fmt.Sprintf("no job for document %q", docID), 1)
	}
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Document: %s\n", job.DocumentID)
	fmt.Fprintf(w, "Filename: %s\n", job.Filename)
	if job.Owner != "" {
		fmt.Fprintf(w, "Owner:    %s\n", job.Owner)
	}
	fmt.Fprintf(w, "Status:   %s\n", job.Status)
	fmt.Fprintf(w, "Stage:    %s (%d%%)\n", job.Stage, job.Progress)
	fmt.Fprintf(w, "Chunks:   %d\n", job.ChunkCount)
	fmt.Fprintf(w, "Updated:  %s\n", job.UpdatedAt.Format(time.RFC3339))
	if job.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", job.Error)
	}
	return nil
}

func chunksCommand(c *cli.Context) error {
	docID := c.Args().First()
	if docID == "" {
		return fmt.Errorf("document id is required")
	}
	repo, closeRepo, err := openRepository(c)
	if err != nil {
		return err
	}
	defer closeRepo()

	chunks, err := repo.GetChunks(c.Context, docID)
	if err != nil {
		return err
	}

	w := c.App.Writer
	for _, chunk := range chunks {
		text := chunk.Text
		if !c.Bool("full") {
			text = preview(text, 60)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d dims\t%s\n",
			chunk.Index, chunk.ChunkID, chunk.Metadata[chunking.MetaChunkType], len(chunk.Vector), text)
	}
	return nil
}

func jobsCommand(c *cli.Context) error {
	repo, closeRepo, err := openRepository(c)
	if err != nil {
		return err
	}
	defer closeRepo()

	jobs, err := repo.ListJobs(c.Context)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\t%d chunks\n", job.DocumentID, job.Filename, job.Status, job.ChunkCount)
	}
	return nil
}

// preview flattens text to one line of at most n runes.
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func setup(c *cli.Context) error {
	// Global flags are parsed before the env file is loaded, so a level
	// that only the file provides is read back from the environment.
	levelSet := c.IsSet("log-level")
	if err := godotenv.Load(c.String("env-file")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", c.String("env-file"), err)
	}
	level := c.String("log-level")
	if v := os.Getenv("DOCPIPE_LOG_LEVEL"); !levelSet && v != "" {
		level = v
	}
	return setupLogger(c, level)
}

func setupLogger(c *cli.Context, levelStr string) error {
	levelStr = strings.ToLower(levelStr)

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
