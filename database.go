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


package docpipe

import (
	"log/slog"

	"github.com/poiesic/docpipe/ai"
	"github.com/poiesic/docpipe/ai/openai"
	"github.com/poiesic/docpipe/ingestion"
	"github.com/poiesic/docpipe/resilience"
	"github.com/poiesic/docpipe/storage"
	"github.com/poiesic/docpipe/storage/badger"
)

// Database ties a chunk store, an embedder and the circuit breaker guarding
// the embedding endpoint together. Pipelines created from one Database share
// the breaker.
type Database struct {
	backend  *badger.Backend
	repo     *badger.ChunkRepository
	embedder ai.Embedder
	breaker  *resilience.CircuitBreaker
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig      *ai.Config
	breakerConfig resilience.BreakerConfig
	embedder      ai.Embedder
	inMemory      bool
	logger        *slog.Logger
}

// WithAIConfig sets the embedding service configuration.
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		if config != nil {
			o.aiConfig = config
		}
	}
}

// WithBreakerConfig sets the circuit breaker configuration.
func WithBreakerConfig(config resilience.BreakerConfig) DatabaseOption {
	return func(o *databaseOptions) {
		o.breakerConfig = config
	}
}

// WithEmbedder uses embedder instead of building one from the AI config.
func WithEmbedder(embedder ai.Embedder) DatabaseOption {
	return func(o *databaseOptions) {
		o.embedder = embedder
	}
}

// WithInMemory keeps all data in memory. The path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	// Apply options
	options := &databaseOptions{
		aiConfig:      ai.DefaultConfig(), // Default if not provided
		breakerConfig: resilience.DefaultBreakerConfig(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	breaker, err := resilience.NewCircuitBreaker("embedding", options.breakerConfig,
		resilience.WithBreakerLogger(options.logger))
	if err != nil {
		return nil, err
	}

	embedder := options.embedder
	if embedder == nil {
		embedder, err = openai.NewEmbedderWithLogger(options.aiConfig, options.logger)
		if err != nil {
			return nil, err
		}
		embedder, err = ai.NewCachingEmbedder(embedder, options.aiConfig.CacheSize)
		if err != nil {
			return nil, err
		}
	}

	// Open backend
	backend, err := badger.OpenBackend(filePath, options.inMemory, badger.WithLogger(options.logger))
	if err != nil {
		return nil, err
	}

	repo, err := badger.NewChunkRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Database{
		backend:  backend,
		repo:     repo,
		embedder: embedder,
		breaker:  breaker,
		logger:   options.logger,
	}, nil
}

func (db *Database) Close() error {
	if err := db.repo.Close(); err != nil {
		db.logger.Error("error closing chunk repository", "err", err)
		return err
	}

	// Close backend
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Store returns the chunk store pipelines write to.
func (db *Database) Store() storage.ChunkStore {
	return db.repo
}

// Jobs returns read access to stored jobs and chunks.
func (db *Database) Jobs() storage.JobReader {
	return db.repo
}

// Embedder returns the embedder pipelines use.
func (db *Database) Embedder() ai.Embedder {
	return db.embedder
}

// Breaker returns the circuit breaker shared by every pipeline.
func (db *Database) Breaker() *resilience.CircuitBreaker {
	return db.breaker
}

// NewPipeline creates an ingestion pipeline over this database. The shared
// circuit breaker and logger are applied before opts.
func (db *Database) NewPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	base := []ingestion.Option{
		ingestion.WithCircuitBreaker(db.breaker),
		ingestion.WithLogger(db.logger),
	}
	return ingestion.NewPipeline(db.repo, db.embedder, append(base, opts...)...)
}
