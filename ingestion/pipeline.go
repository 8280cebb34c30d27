package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docpipe/ai"
	"github.com/poiesic/docpipe/chunking"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/progress"
	"github.com/poiesic/docpipe/resilience"
	"github.com/poiesic/docpipe/storage"
	"golang.org/x/time/rate"
)

const defaultBatchSize = 10

// Pipeline orchestrates parsing, chunking, embedding and storage of documents.
// A Pipeline may process several documents concurrently; nothing but the
// circuit breaker is shared between jobs.
type Pipeline struct {
	store     storage.ChunkStore
	embedder  ai.Embedder
	chunkCfg  chunking.Config
	batchSize int
	retryCfg  resilience.RetryConfig
	retry     *resilience.RetryPolicy
	breaker   *resilience.CircuitBreaker
	pool      *ants.Pool
	limiter   *rate.Limiter
	reporter  progress.Reporter
	owner     string
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithChunkingConfig sets the chunker configuration.
func WithChunkingConfig(cfg chunking.Config) Option {
	return func(p *Pipeline) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		p.chunkCfg = cfg
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded per batch. Default is 10.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("%w: batch size must be at least 1, got %d", ErrInvalidOption, size)
		}
		p.batchSize = size
		return nil
	}
}

// WithRetryConfig sets the retry policy for embedding batches and chunk storage.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(p *Pipeline) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		p.retryCfg = cfg
		return nil
	}
}

// WithCircuitBreaker guards embedding calls with breaker. Pass the same
// breaker to every pipeline talking to one embedding endpoint.
func WithCircuitBreaker(breaker *resilience.CircuitBreaker) Option {
	return func(p *Pipeline) error {
		p.breaker = breaker
		return nil
	}
}

// WithPoolSize sets the number of concurrent embedding calls within a batch.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithRateLimit caps outbound embedding calls at perSecond with the given
// burst. A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(p *Pipeline) error {
		if perSecond <= 0 {
			p.limiter = nil
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithReporter sets the progress reporter. Default is progress.Noop.
func WithReporter(reporter progress.Reporter) Option {
	return func(p *Pipeline) error {
		if reporter == nil {
			reporter = progress.Noop
		}
		p.reporter = reporter
		return nil
	}
}

// WithOwner sets the owner recorded on every job.
func WithOwner(owner string) Option {
	return func(p *Pipeline) error {
		p.owner = owner
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithClock sets the clock used for ProcessedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		if now == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidOption)
		}
		p.now = now
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(store storage.ChunkStore, embedder ai.Embedder, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrChunkStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		store:     store,
		embedder:  embedder,
		chunkCfg:  chunking.DefaultConfig(),
		batchSize: defaultBatchSize,
		retryCfg:  resilience.DefaultRetryConfig(),
		pool:      pool,
		reporter:  progress.Noop,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	if p.breaker == nil {
		p.breaker, err = resilience.NewCircuitBreaker("embedding", resilience.DefaultBreakerConfig(),
			resilience.WithBreakerLogger(p.logger))
		if err != nil {
			p.Release()
			return nil, err
		}
	}

	p.retry, err = resilience.NewRetryPolicy(p.retryCfg,
		resilience.WithRetryLogger(p.logger),
		resilience.WithObserver(func(attempt int, delay time.Duration, err error) {
			p.logger.Warn("retrying after failure", "attempt", attempt, "delay", delay, "err", err)
		}))
	if err != nil {
		p.Release()
		return nil, err
	}

	return p, nil
}

// Breaker returns the circuit breaker guarding embedding calls.
func (p *Pipeline) Breaker() *resilience.CircuitBreaker {
	return p.breaker
}

// ProcessContent builds a SourceDocument and processes it.
func (p *Pipeline) ProcessContent(ctx context.Context, content, filename string, docType core.DocumentType, docID string) (*core.ProcessingResult, error) {
	return p.Process(ctx, &core.SourceDocument{
		ID:       docID,
		Filename: filename,
		Type:     docType,
		Content:  content,
	})
}

// Process runs doc through every stage. The returned result is never nil and
// its Status reflects the outcome; the error is non-nil whenever the status
// is not completed.
func (p *Pipeline) Process(ctx context.Context, doc *core.SourceDocument) (*core.ProcessingResult, error) {
	j := &job{
		pipeline: p,
		state:    newJobState(),
		result:   &core.ProcessingResult{Status: core.StatusProcessing},
	}
	if doc == nil || strings.TrimSpace(doc.ID) == "" {
		// Without an id there is no job to record the failure against.
		err := core.ValidateSourceDocument(doc)
		j.logger = p.logger
		if doc != nil {
			j.result.Filename = doc.Filename
		}
		return j.finish(err), err
	}
	j.doc = doc
	j.logger = p.logger.With("doc", doc.ID)
	j.result.DocumentID = doc.ID
	j.result.Filename = doc.Filename

	if err := j.run(ctx); err != nil {
		return j.fail(ctx, err)
	}
	return j.finish(nil), nil
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// chunker parses and splits one document.
type chunker interface {
	Parse(text string) (*core.ParsedDocument, error)
	Chunk(parsed *core.ParsedDocument, docID string) ([]core.Chunk, error)
}

func (p *Pipeline) chunkerFor(doc *core.SourceDocument) (chunker, error) {
	switch doc.Type {
	case core.DocumentTypeMarkdown:
		return chunking.NewMarkdownChunker(p.chunkCfg)
	case core.DocumentTypeRecords:
		return chunking.NewRecordChunker(p.chunkCfg, chunking.WithFormat(chunking.FormatForFilename(doc.Filename)))
	}
	return nil, core.NewValidationError(core.CodeUnsupportedType, strconv.Quote(string(doc.Type)), core.ErrUnsupportedType)
}

// job is the state of one Process call.
type job struct {
	pipeline *Pipeline
	doc      *core.SourceDocument
	state    *jobState
	result   *core.ProcessingResult
	logger   *slog.Logger

	// failedAt is the stage the job was in when it failed.
	failedAt core.Stage
	// stored is set once chunks may have reached the store.
	stored bool
}

func (j *job) run(ctx context.Context) error {
	p := j.pipeline

	if err := j.initialize(ctx); err != nil {
		return err
	}

	// parsing
	if err := j.advance(ctx, core.StageParsing); err != nil {
		return err
	}
	if err := core.ValidateSourceDocument(j.doc); err != nil {
		return err
	}
	ch, err := p.chunkerFor(j.doc)
	if err != nil {
		return err
	}
	parsed, err := ch.Parse(j.doc.Content)
	if err != nil {
		return err
	}
	j.result.Metadata = resultMetadata(j.doc, parsed)

	// chunking
	if err := j.advance(ctx, core.StageChunking); err != nil {
		return err
	}
	chunks, err := ch.Chunk(parsed, j.doc.ID)
	if err != nil {
		return err
	}
	j.result.Chunks = chunks
	j.result.ChunkCount = len(chunks)
	j.result.Metadata["chunk_count"] = strconv.Itoa(len(chunks))
	j.logger.Debug("document chunked", "chunks", len(chunks))

	// embedding
	if err := j.advance(ctx, core.StageEmbedding); err != nil {
		return err
	}
	if err := j.embed(ctx, chunks); err != nil {
		return err
	}

	// storing
	if err := j.advance(ctx, core.StageStoring); err != nil {
		return err
	}
	if err := j.persist(ctx, chunks); err != nil {
		return err
	}

	return j.advance(ctx, core.StageCompleted)
}

// initialize registers the job with the store and the reporter.
func (j *job) initialize(ctx context.Context) error {
	p := j.pipeline
	meta := map[string]string{"document_type": string(j.doc.Type)}
	err := p.retry.Execute(ctx, func(ctx context.Context) error {
		return p.store.CreateJob(ctx, j.doc.ID, j.doc.Filename, p.owner, meta)
	})
	if err != nil {
		return err
	}
	if err := p.reporter.Initialize(ctx, j.doc.ID, j.doc.Filename); err != nil {
		j.logger.Warn("failed to initialize progress", "err", err)
	}
	return nil
}

// advance checks for cancellation, enters stage and reports it.
func (j *job) advance(ctx context.Context, stage core.Stage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state, err := j.state.advance(stage)
	if err != nil {
		return core.NewProcessingError(j.state.stage(), core.CodeChunkingFailed, false, err)
	}
	j.logger.Debug("entering stage", "stage", stage, "progress", state.Progress)
	j.report(ctx, state)
	return nil
}

func (j *job) embed(ctx context.Context, chunks []core.Chunk) error {
	p := j.pipeline
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	e := &batchEmbedder{
		embedder:  p.embedder,
		breaker:   p.breaker,
		retry:     p.retry,
		pool:      p.pool,
		limiter:   p.limiter,
		batchSize: p.batchSize,
		logger:    j.logger,
	}
	span := core.StageStoring.Progress() - core.StageEmbedding.Progress()
	vectors, err := e.embed(ctx, texts, func(done, total int) {
		pct := core.StageEmbedding.Progress() + span*done/total
		if state, ok := j.state.progress(pct); ok {
			j.report(ctx, state)
		}
	})

	embedded := 0
	for i, vec := range vectors {
		if vec != nil {
			chunks[i].Embedding = vec
			embedded++
		}
	}
	j.result.EmbeddingCount = embedded
	if err != nil {
		return err
	}

	if embedded != len(chunks) {
		return core.NewProcessingError(core.StageEmbedding, core.CodeEmbeddingMismatch, false,
			fmt.Errorf("%w: %d chunks, %d embeddings", ErrEmbeddingCountMismatch, len(chunks), embedded))
	}
	return nil
}

func (j *job) persist(ctx context.Context, chunks []core.Chunk) error {
	p := j.pipeline
	stored := make([]storage.StoredChunk, len(chunks))
	for i, c := range chunks {
		stored[i] = storage.StoredChunk{
			DocumentID: j.doc.ID,
			Filename:   j.doc.Filename,
			Index:      c.Index,
			ChunkID:    c.ID,
			Text:       c.Text,
			Vector:     c.Embedding,
			Metadata:   c.Metadata,
		}
	}
	j.stored = true
	return p.retry.Execute(ctx, func(ctx context.Context) error {
		return p.store.StoreChunks(ctx, stored)
	})
}

// report pushes state to the store and the reporter. Failures are logged.
func (j *job) report(ctx context.Context, state core.ProcessingState) {
	p := j.pipeline
	ctx = context.WithoutCancel(ctx)
	err := p.store.UpdateStatus(ctx, j.doc.ID, storage.StatusUpdate{
		Stage:    state.Stage,
		Progress: state.Progress,
		Status:   state.Status,
		Error:    state.Error,
	})
	if err != nil {
		j.logger.Warn("failed to update job status", "stage", state.Stage, "err", err)
	}
	err = p.reporter.Update(ctx, j.doc.ID, progress.Update{
		Stage:    state.Stage,
		Progress: state.Progress,
		Status:   state.Status,
		Error:    state.Error,
	})
	if err != nil {
		j.logger.Warn("failed to report progress", "stage", state.Stage, "err", err)
	}
}

// fail records err against the job and returns the failed result.
func (j *job) fail(ctx context.Context, err error) (*core.ProcessingResult, error) {
	j.failedAt = j.state.stage()
	if j.failedAt == "" {
		j.failedAt = core.StageParsing
	}
	err = annotate(err, j.doc.ID, j.failedAt)

	status := core.StatusFailed
	if isCancellation(err) {
		status = core.StatusCancelled
		j.logger.Info("ingestion cancelled", "stage", j.failedAt)
	} else {
		j.logger.Error("ingestion failed", "stage", j.failedAt, "err", err)
	}

	if j.stored {
		if derr := j.pipeline.store.DeleteChunks(context.WithoutCancel(ctx), j.doc.ID); derr != nil {
			j.logger.Warn("failed to delete partial chunks", "err", derr)
		}
	}

	j.report(ctx, j.state.fail(status, err.Error()))
	return j.finish(err), err
}

// finish fills the final state into the result.
func (j *job) finish(err error) *core.ProcessingResult {
	if err != nil && j.state.stage() != core.StageError {
		status := core.StatusFailed
		if isCancellation(err) {
			status = core.StatusCancelled
		}
		j.state.fail(status, err.Error())
	}
	state := j.state.snapshot()
	j.result.State = state
	j.result.Status = state.Status
	j.result.ProcessedAt = j.pipeline.now()
	return j.result
}

// annotate converts err into a *core.Error carrying the document and stage.
func annotate(err error, docID string, stage core.Stage) error {
	var e *core.Error
	if errors.As(err, &e) {
		return e.WithDocument(docID, stage)
	}
	if isCancellation(err) {
		return core.NewProcessingError(stage, core.CodeCancelled, false, err).WithDocument(docID, stage)
	}
	switch stage {
	case core.StageStoring:
		return core.NewStoreError("store chunks", err).WithDocument(docID, stage)
	case core.StageEmbedding:
		return core.NewEmbeddingError(0, err).WithDocument(docID, stage)
	}
	return core.NewProcessingError(stage, core.CodeChunkingFailed, false, err).WithDocument(docID, stage)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// resultMetadata merges parsed document metadata with pipeline keys.
func resultMetadata(doc *core.SourceDocument, parsed *core.ParsedDocument) map[string]string {
	meta := make(map[string]string, len(parsed.Metadata)+3)
	for k, v := range parsed.Metadata {
		meta[k] = v
	}
	meta["document_type"] = string(doc.Type)
	if parsed.Schema != nil {
		meta["schema_type"] = string(parsed.Schema.Type)
	}
	return meta
}
