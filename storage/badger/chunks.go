package badger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/storage"
)

// ChunkRepository implements storage.ChunkStore and storage.JobReader for BadgerDB.
type ChunkRepository struct {
	backend *Backend
	now     func() time.Time
}

var (
	_ storage.ChunkStore = (*ChunkRepository)(nil)
	_ storage.JobReader  = (*ChunkRepository)(nil)
)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	return &ChunkRepository{
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close is a no-op; the backend is owned by the caller.
func (r *ChunkRepository) Close() error {
	return nil
}

// CreateJob registers a job in the processing state, replacing any previous
// job for the document and deleting its chunks.
func (r *ChunkRepository) CreateJob(ctx context.Context, docID, filename, owner string, meta map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(docID) == "" {
		return storage.ErrMissingDocumentID
	}

	stale, err := r.backend.keysWithPrefix(makeChunkPrefix(docID))
	if err != nil {
		return core.NewStoreError("create job", err)
	}

	now := r.now()
	job := &storage.Job{
		DocumentID: docID,
		Filename:   filename,
		Owner:      owner,
		Metadata:   meta,
		Stage:      core.StageParsing,
		Progress:   0,
		Status:     core.StatusProcessing,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	value := storage.MarshalJob(job)

	w, err := r.backend.newWriter()
	if err != nil {
		return core.NewStoreError("create job", err)
	}
	defer w.discard()
	for _, key := range stale {
		if err := w.delete(key); err != nil {
			return core.NewStoreError("create job", err)
		}
	}
	if err := w.set(makeJobKey(docID), value); err != nil {
		return core.NewStoreError("create job", err)
	}
	if err := w.commit(); err != nil {
		return core.NewStoreError("create job", err)
	}
	return nil
}

// StoreChunks writes chunks and refreshes the chunk count of their jobs.
func (r *ChunkRepository) StoreChunks(ctx context.Context, chunks []storage.StoredChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	w, err := r.backend.newWriter()
	if err != nil {
		return core.NewStoreError("store chunks", err)
	}
	defer w.discard()

	var docs []string
	seen := make(map[string]bool)
	for i := range chunks {
		chunk := &chunks[i]
		if strings.TrimSpace(chunk.DocumentID) == "" {
			return storage.ErrMissingDocumentID
		}
		value, err := storage.MarshalStoredChunk(chunk)
		if err != nil {
			return core.NewProcessingError(core.StageStoring, core.CodeSerializationFailed, false, err)
		}
		if err := w.set(makeChunkKey(chunk.DocumentID, chunk.Index), value); err != nil {
			return core.NewStoreError("store chunks", err)
		}
		if !seen[chunk.DocumentID] {
			seen[chunk.DocumentID] = true
			docs = append(docs, chunk.DocumentID)
		}
	}
	if err := w.commit(); err != nil {
		return core.NewStoreError("store chunks", err)
	}

	for _, docID := range docs {
		if err := r.refreshChunkCount(docID); err != nil {
			return core.NewStoreError("store chunks", err)
		}
	}
	return nil
}

func (r *ChunkRepository) refreshChunkCount(docID string) error {
	keys, err := r.backend.keysWithPrefix(makeChunkPrefix(docID))
	if err != nil {
		return err
	}
	err = r.modifyJob(docID, func(job *storage.Job) {
		job.ChunkCount = len(keys)
	})
	// Chunks may be stored without a job.
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// UpdateStatus records the stage, progress and status of a job.
func (r *ChunkRepository) UpdateStatus(ctx context.Context, docID string, update storage.StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := r.modifyJob(docID, func(job *storage.Job) {
		job.Stage = update.Stage
		job.Progress = update.Progress
		job.Status = update.Status
		job.Error = update.Error
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return core.NewStoreError("update status", err)
	}
	return err
}

func (r *ChunkRepository) modifyJob(docID string, fn func(job *storage.Job)) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeJobKey(docID)
		job, err := readJob(tx, key)
		if err != nil {
			return err
		}
		fn(job)
		job.UpdatedAt = r.now()
		if err := tx.Set(key, storage.MarshalJob(job)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DeleteChunks removes every chunk of a document and zeroes its chunk count.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, docID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	keys, err := r.backend.keysWithPrefix(makeChunkPrefix(docID))
	if err != nil {
		return core.NewStoreError("delete chunks", err)
	}
	if len(keys) > 0 {
		w, err := r.backend.newWriter()
		if err != nil {
			return core.NewStoreError("delete chunks", err)
		}
		defer w.discard()
		for _, key := range keys {
			if err := w.delete(key); err != nil {
				return core.NewStoreError("delete chunks", err)
			}
		}
		if err := w.commit(); err != nil {
			return core.NewStoreError("delete chunks", err)
		}
	}
	if err := r.refreshChunkCount(docID); err != nil {
		return core.NewStoreError("delete chunks", err)
	}
	return nil
}

// GetJob retrieves the job of a document.
func (r *ChunkRepository) GetJob(ctx context.Context, docID string) (*storage.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var job *storage.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		job, err = readJob(tx, makeJobKey(docID))
		return err
	}, false)
	return job, err
}

// GetChunks retrieves the chunks of a document ordered by index.
func (r *ChunkRepository) GetChunks(ctx context.Context, docID string) ([]storage.StoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var chunks []storage.StoredChunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix(docID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				chunk, err := storage.UnmarshalStoredChunk(val)
				if err != nil {
					return err
				}
				chunks = append(chunks, *chunk)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return chunks, err
}

// ListJobs retrieves every job ordered by document id.
func (r *ChunkRepository) ListJobs(ctx context.Context) ([]*storage.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var jobs []*storage.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				job, err := storage.UnmarshalJob(val)
				if err != nil {
					return err
				}
				jobs = append(jobs, job)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return jobs, err
}

// readJob reads the job stored under key or returns storage.ErrNotFound.
func readJob(tx *badger.Txn, key []byte) (*storage.Job, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var job *storage.Job
	err = item.Value(func(val []byte) error {
		var err error
		job, err = storage.UnmarshalJob(val)
		return err
	})
	return job, err
}
