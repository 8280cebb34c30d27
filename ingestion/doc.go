// Package ingestion turns source documents into stored, embedded chunks.
//
// Pipeline.Process runs one document through a fixed sequence of stages:
//   - parsing (25%): validate and parse with the chunker chosen by document type
//   - chunking (50%): split the parsed document into chunks
//   - embedding (75%): embed chunks batch by batch
//   - storing (90%): persist chunks and vectors through the chunk store
//   - completed (100%)
//
// Any failure moves the job to the error stage with progress 0. Batches are
// embedded one after another; the chunks inside a batch are embedded
// concurrently on a worker pool, paced by an optional rate limiter and
// guarded by a circuit breaker that may be shared between pipelines.
//
// Progress reporting and status updates are best-effort: failures are logged
// and never abort a job.
package ingestion
