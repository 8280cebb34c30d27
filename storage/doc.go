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


// Package storage defines the persistence contract of the ingestion pipeline.
//
// The pipeline writes through ChunkStore: a job record is created before
// parsing starts, its stage and progress are updated as the pipeline moves
// forward, and embedded chunks are written once embedding succeeds. Readers
// such as the CLI use JobReader to inspect jobs and chunks after the fact.
//
// # Usage
//
// Open a BadgerDB-backed store:
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	repo, err := badger.NewChunkRepository(backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
// Use in tests with in-memory storage:
//
//	repo, backend, err := badger.NewMemoryRepository()
//
// # Values
//
// Jobs and chunks are stored in MUS binary format (JobMUS, StoredChunkMUS,
// wrapped by MarshalJob and MarshalStoredChunk). Embedding vectors must be
// finite.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
package storage
