package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docpipe/ai"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/resilience"
	"golang.org/x/time/rate"
)

// batchEmbedder embeds chunk texts batch by batch.
type batchEmbedder struct {
	embedder  ai.Embedder
	breaker   *resilience.CircuitBreaker
	retry     *resilience.RetryPolicy
	pool      *ants.Pool
	limiter   *rate.Limiter
	batchSize int
	logger    *slog.Logger
}

// embed returns one vector per text. Batches run in order; onBatch is
// called after each batch with the number of texts embedded so far.
func (e *batchEmbedder) embed(ctx context.Context, texts []string, onBatch func(done, total int)) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return vectors, err
		}
		end := min(start+e.batchSize, len(texts))

		e.logger.Debug("embedding batch", "from", start, "to", end, "total", len(texts))
		if err := e.embedBatch(ctx, texts[start:end], vectors[start:end]); err != nil {
			return vectors, err
		}
		if onBatch != nil {
			onBatch(end, len(texts))
		}
	}
	return vectors, nil
}

// embedBatch fills vectors through the retry policy. Each attempt only
// re-embeds the texts that still lack a vector.
func (e *batchEmbedder) embedBatch(ctx context.Context, texts []string, vectors [][]float32) error {
	attempts := 0
	err := e.retry.Execute(ctx, func(ctx context.Context) error {
		attempts++
		return e.embedMissing(ctx, texts, vectors)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, core.ErrCircuitOpen) {
		return err
	}
	return core.NewEmbeddingError(attempts, err)
}

func (e *batchEmbedder) embedMissing(ctx context.Context, texts []string, vectors [][]float32) error {
	// A breaker that is not closed admits a single trial call, so one item
	// goes first and the rest follow once it has closed the circuit.
	if e.breaker != nil && e.breaker.State() != resilience.StateClosed {
		for i := range texts {
			if vectors[i] != nil {
				continue
			}
			vec, err := e.embedOne(ctx, texts[i])
			if err != nil {
				return err
			}
			vectors[i] = vec
			break
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, len(texts))
	for i := range texts {
		if vectors[i] != nil {
			continue
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			vec, err := e.embedOne(ctx, texts[i])
			if err != nil {
				errs[i] = err
				return
			}
			vectors[i] = vec
		}
		if err := e.pool.Submit(task); err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()
	// One open circuit fails the whole batch without further retries.
	for _, err := range errs {
		if errors.Is(err, core.ErrCircuitOpen) {
			return err
		}
	}
	return errors.Join(errs...)
}

func (e *batchEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	call := func(ctx context.Context) ([]float32, error) {
		vec, err := e.embedder.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(vec) == 0 {
			return nil, core.NewProcessingError(core.StageEmbedding, core.CodeEmptyEmbedding, true,
				fmt.Errorf("embedder returned an empty vector"))
		}
		for i, x := range vec {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return nil, core.NewProcessingError(core.StageEmbedding, core.CodeInvalidEmbedding, true,
					fmt.Errorf("embedder returned non-finite component %d (%v)", i, x))
			}
		}
		return vec, nil
	}
	if e.breaker == nil {
		return call(ctx)
	}
	return resilience.Call(ctx, e.breaker, call)
}
