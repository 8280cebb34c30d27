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

package chunking

import (
	"errors"
	"fmt"

	"github.com/poiesic/docpipe/core"
)

// ErrInvalidConfig is wrapped by every Config validation failure.
var ErrInvalidConfig = errors.New("invalid chunking config")

// Config holds the chunking parameters shared by both chunkers.
type Config struct {
	// ChunkSize is the target chunk length in characters.
	// Default: 512
	ChunkSize int

	// ChunkOverlap is the overlap between consecutive chunks. Header-based
	// splitting counts it in words; size-based windows count it in characters.
	// Default: 50
	ChunkOverlap int

	// ChunkByHeaders selects header-bounded chunking for markdown when the
	// document has at least one header.
	ChunkByHeaders bool

	// PreserveHeaders repeats a section's header line at the top of every
	// sub-chunk when a section is split.
	PreserveHeaders bool

	// GroupRelatedItems groups FAQ records into multi-item chunks.
	GroupRelatedItems bool

	// MaxDepth caps structural depth analysis of record collections.
	// Default: 10
	MaxDepth int

	// GroupingKey is the record field that links FAQ items into one group.
	// Default: "chunk_id"
	GroupingKey string

	// CategoryKey is the record field that names an FAQ item's category.
	// Default: "category"
	CategoryKey string
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithChunkSize sets the target chunk size in characters.
func WithChunkSize(size int) ConfigOption {
	return func(c *Config) {
		c.ChunkSize = size
	}
}

// WithChunkOverlap sets the chunk overlap.
func WithChunkOverlap(overlap int) ConfigOption {
	return func(c *Config) {
		c.ChunkOverlap = overlap
	}
}

// WithChunkByHeaders toggles header-based markdown chunking.
func WithChunkByHeaders(enabled bool) ConfigOption {
	return func(c *Config) {
		c.ChunkByHeaders = enabled
	}
}

// WithPreserveHeaders toggles header repetition in split sections.
func WithPreserveHeaders(enabled bool) ConfigOption {
	return func(c *Config) {
		c.PreserveHeaders = enabled
	}
}

// WithGroupRelatedItems toggles FAQ grouping.
func WithGroupRelatedItems(enabled bool) ConfigOption {
	return func(c *Config) {
		c.GroupRelatedItems = enabled
	}
}

// WithMaxDepth sets the structural depth cap for record collections.
func WithMaxDepth(depth int) ConfigOption {
	return func(c *Config) {
		c.MaxDepth = depth
	}
}

// WithGroupingKey sets the FAQ grouping key field name.
func WithGroupingKey(key string) ConfigOption {
	return func(c *Config) {
		c.GroupingKey = key
	}
}

// DefaultConfig returns the default chunking configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:         512,
		ChunkOverlap:      50,
		ChunkByHeaders:    true,
		PreserveHeaders:   true,
		GroupRelatedItems: true,
		MaxDepth:          10,
		GroupingKey:       "chunk_id",
		CategoryKey:       "category",
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
func NewConfig(opts ...ConfigOption) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Validate checks that the configuration can drive a chunker.
func (c Config) Validate() error {
	var reason string
	switch {
	case c.ChunkSize < 1:
		reason = fmt.Sprintf("chunk size must be positive, got %d", c.ChunkSize)
	case c.ChunkOverlap < 0:
		reason = fmt.Sprintf("chunk overlap must not be negative, got %d", c.ChunkOverlap)
	case c.MaxDepth < 1:
		reason = fmt.Sprintf("max depth must be positive, got %d", c.MaxDepth)
	case c.GroupingKey == "" || c.CategoryKey == "":
		reason = "grouping and category keys are required"
	default:
		return nil
	}
	return core.NewValidationError(core.CodeInvalidConfig, reason, ErrInvalidConfig)
}

// splitThreshold is the length above which a section or group is split.
func (c Config) splitThreshold() int {
	return c.ChunkSize * 3 / 2
}
