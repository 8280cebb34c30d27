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


package ai

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/poiesic/docpipe/core"
)

// ErrEmbeddingCountMismatch is returned when an embedder returns a different
// number of vectors than texts it was given.
var ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")

// CachingEmbedder remembers embeddings by content so re-ingesting unchanged
// text does not call the embedding service again.
type CachingEmbedder struct {
	inner Embedder
	cache *lru.Cache[core.ID, []float32]
}

// NewCachingEmbedder wraps inner with an LRU cache of the given size.
// A size of zero or less returns inner unchanged.
func NewCachingEmbedder(inner Embedder, size int) (Embedder, error) {
	if size <= 0 {
		return inner, nil
	}
	cache, err := lru.New[core.ID, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachingEmbedder{inner: inner, cache: cache}, nil
}

// EmbedText returns a cached vector or embeds and caches text.
func (c *CachingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := core.IDFromContent(text)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(v) > 0 {
		c.cache.Add(key, v)
	}
	return v, nil
}

// EmbedTexts serves cached vectors and forwards all misses in one batch.
func (c *CachingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if v, ok := c.cache.Get(core.IDFromContent(text)); ok {
			out[i] = v
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.inner.EmbedTexts(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("%w: got %d for %d texts", ErrEmbeddingCountMismatch, len(vectors), len(missing))
	}
	for j, v := range vectors {
		out[missingIdx[j]] = v
		if len(v) > 0 {
			c.cache.Add(core.IDFromContent(missing[j]), v)
		}
	}
	return out, nil
}

// Len returns the number of cached embeddings.
func (c *CachingEmbedder) Len() int {
	return c.cache.Len()
}
