// Package mock provides a test double for ai.Embedder.
//
// MockEmbedder returns deterministic vectors derived from the text hash, so
// tests need no embedding service. Behavior can be replaced per test:
//
//	mockEmbedder := mock.NewMockEmbedder().
//	    WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
//	        return []float32{0.1, 0.2, 0.3}, nil
//	    })
//
//	// Fail twice, then succeed
//	mockEmbedder.EmbedTextFunc = mock.FailFirst(2, errors.New("503"))
//
//	// Check call counts
//	count := mockEmbedder.CallCount()
package mock
