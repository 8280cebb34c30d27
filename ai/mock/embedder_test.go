package mock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	a, err := m.EmbedText(ctx, "text")
	require.NoError(t, err)
	b, err := m.EmbedText(ctx, "text")
	require.NoError(t, err)
	c, err := m.EmbedText(ctx, "other")
	require.NoError(t, err)

	assert.Len(t, a, DefaultDimension)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestMockEmbedder_EmbedTexts(t *testing.T) {
	m := NewMockEmbedder()
	m.Dimension = 8

	vectors, err := m.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 8)
	assert.Equal(t, 1, m.CallCount())
	assert.Equal(t, 2, m.TextCount())
}

func TestMockEmbedder_ConcurrentCounts(t *testing.T) {
	m := NewMockEmbedder()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.EmbedText(context.Background(), "x")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, m.CallCount())
	assert.Len(t, m.Texts(), 50)
}

func TestFailFirst(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockEmbedder().WithEmbedTextFunc(FailFirst(2, boom))
	ctx := context.Background()

	_, err := m.EmbedText(ctx, "x")
	assert.ErrorIs(t, err, boom)
	_, err = m.EmbedText(ctx, "x")
	assert.ErrorIs(t, err, boom)
	v, err := m.EmbedText(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, Vector("x", DefaultDimension), v)
}

func TestMockEmbedder_Reset(t *testing.T) {
	m := NewMockEmbedder().WithEmbedTextFunc(FailFirst(1, errors.New("x")))
	_, _ = m.EmbedText(context.Background(), "a")
	m.Reset()

	assert.Zero(t, m.CallCount())
	assert.Empty(t, m.Texts())
	_, err := m.EmbedText(context.Background(), "a")
	assert.NoError(t, err)
}

func TestMockEmbedder_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockEmbedder().EmbedText(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}
