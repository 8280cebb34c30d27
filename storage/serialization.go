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
	"fmt"
	"math"
)

// MarshalJob serializes a Job to bytes.
func MarshalJob(job *Job) []byte {
	buf := make([]byte, JobMUS.Size(*job))
	JobMUS.Marshal(*job, buf)
	return buf
}

// UnmarshalJob deserializes a Job from bytes.
func UnmarshalJob(data []byte) (*Job, error) {
	job, n, err := JobMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: job: %w", ErrSerializationFailed, err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: job: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return &job, nil
}

// MarshalStoredChunk serializes a StoredChunk to bytes. Vectors with NaN or
// infinite components are rejected.
func MarshalStoredChunk(chunk *StoredChunk) ([]byte, error) {
	for i, x := range chunk.Vector {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil, fmt.Errorf("%w: chunk %s/%d: vector component %d is %v",
				ErrSerializationFailed, chunk.DocumentID, chunk.Index, i, x)
		}
	}
	buf := make([]byte, StoredChunkMUS.Size(*chunk))
	StoredChunkMUS.Marshal(*chunk, buf)
	return buf, nil
}

// UnmarshalStoredChunk deserializes a StoredChunk from bytes.
func UnmarshalStoredChunk(data []byte) (*StoredChunk, error) {
	chunk, n, err := StoredChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk: %w", ErrSerializationFailed, err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: chunk: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return &chunk, nil
}
