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


package storage

import (
	"context"
	"time"

	"github.com/poiesic/docpipe/core"
)

// Job is the persisted record of one document ingestion.
type Job struct {
	DocumentID string
	Filename   string
	Owner      string
	Metadata   map[string]string
	Stage      core.Stage
	Progress   int
	Status     core.Status
	Error      string
	ChunkCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StoredChunk is a chunk together with its embedding as written to the store.
type StoredChunk struct {
	DocumentID string
	Filename   string
	Index      int
	ChunkID    core.ID
	Text       string
	Vector     []float32
	Metadata   map[string]string
}

// StatusUpdate is applied to a job by UpdateStatus.
type StatusUpdate struct {
	Stage    core.Stage
	Progress int
	Status   core.Status
	Error    string
}

// ChunkStore persists ingestion jobs and their embedded chunks.
// Implementations must be safe for concurrent use.
type ChunkStore interface {
	// CreateJob registers a job for docID in the processing state.
	// Creating a job for an existing document resets it and discards
	// chunks left over from a previous ingestion.
	CreateJob(ctx context.Context, docID, filename, owner string, meta map[string]string) error

	// StoreChunks persists chunks. Chunks with the same document and
	// index are overwritten.
	StoreChunks(ctx context.Context, chunks []StoredChunk) error

	// UpdateStatus records the current stage, progress and status of a job.
	// Returns ErrNotFound if no job exists for docID.
	UpdateStatus(ctx context.Context, docID string, update StatusUpdate) error

	// DeleteChunks removes every chunk stored for docID.
	DeleteChunks(ctx context.Context, docID string) error

	Close() error
}

// JobReader exposes stored jobs and chunks for inspection.
type JobReader interface {
	// GetJob returns the job for docID or ErrNotFound.
	GetJob(ctx context.Context, docID string) (*Job, error)

	// GetChunks returns the chunks of docID ordered by index.
	GetChunks(ctx context.Context, docID string) ([]StoredChunk, error)

	// ListJobs returns all jobs ordered by document id.
	ListJobs(ctx context.Context) ([]*Job, error)
}
