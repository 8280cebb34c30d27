package ingestion

import "errors"

var (
	// ErrChunkStoreRequired is returned when a chunk store is not provided.
	ErrChunkStoreRequired = errors.New("chunk store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidOption is returned by options given out-of-range values.
	ErrInvalidOption = errors.New("invalid pipeline option")

	// ErrStageRegression is returned when a job would move back to an
	// earlier stage.
	ErrStageRegression = errors.New("stage regression")

	// ErrEmbeddingCountMismatch is wrapped by the error raised when the
	// number of embeddings differs from the number of chunks.
	ErrEmbeddingCountMismatch = errors.New("embedding count does not match chunk count")
)
