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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/docpipe/core"
)

// Format selects how a record collection is decoded.
type Format int

const (
	// FormatAuto decodes JSON when the text starts with '[' or '{', YAML otherwise.
	FormatAuto Format = iota
	FormatJSON
	FormatYAML
)

// FormatForFilename picks a Format from a filename extension.
func FormatForFilename(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatAuto
}

const ungroupedName = "ungrouped"

// RecordChunker splits record collections into chunks according to their
// classified schema.
type RecordChunker struct {
	cfg    Config
	format Format
}

// RecordOption configures a RecordChunker.
type RecordOption func(*RecordChunker)

// WithFormat forces the decoding format.
func WithFormat(f Format) RecordOption {
	return func(c *RecordChunker) {
		c.format = f
	}
}

// NewRecordChunker creates a RecordChunker after validating cfg.
func NewRecordChunker(cfg Config, opts ...RecordOption) (*RecordChunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &RecordChunker{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Split parses text and chunks it in one step.
func (c *RecordChunker) Split(docID, text string) ([]core.Chunk, error) {
	parsed, err := c.Parse(text)
	if err != nil {
		return nil, err
	}
	return c.Chunk(parsed, docID)
}

// Parse decodes the collection, classifies it and extracts its text.
func (c *RecordChunker) Parse(text string) (*core.ParsedDocument, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.NewValidationError(core.CodeEmptyContent, "record collection is empty", core.ErrEmptyContent)
	}

	root, err := c.decode(text)
	if err != nil {
		return nil, core.NewValidationError(core.CodeInvalidRecords, "cannot decode record collection", err)
	}
	switch r := root.(type) {
	case []any:
		if len(r) == 0 {
			return nil, core.NewValidationError(core.CodeInvalidRecords, "record collection has no items", nil)
		}
	case map[string]any:
		if len(r) == 0 {
			return nil, core.NewValidationError(core.CodeInvalidRecords, "record collection has no fields", nil)
		}
	default:
		return nil, core.NewValidationError(core.CodeInvalidRecords,
			fmt.Sprintf("root must be an array or object, got %T", root), nil)
	}

	profile := c.Analyze(root)
	meta := map[string]string{
		"schema_type": string(profile.Type),
		"item_count":  strconv.Itoa(profile.ItemCount),
		"depth":       strconv.Itoa(profile.Depth),
		"properties":  strings.Join(profile.Properties, ","),
	}
	if len(profile.Relationships) > 0 {
		meta["relationships"] = strings.Join(profile.Relationships, ",")
	}

	body, err := c.extract(profile.Type, root)
	if err != nil {
		return nil, core.NewProcessingError(core.StageParsing, core.CodeInvalidRecords, false, err)
	}

	return &core.ParsedDocument{
		Body:     body,
		Schema:   profile,
		Metadata: meta,
		Records:  root,
	}, nil
}

// Chunk splits a parsed collection. FAQ collections are grouped or chunked
// per item; everything else uses size-based windows over the extracted text.
func (c *RecordChunker) Chunk(parsed *core.ParsedDocument, docID string) ([]core.Chunk, error) {
	list := &chunkList{docID: docID}

	items, isList := parsed.Records.([]any)
	if parsed.Schema != nil && parsed.Schema.Type == core.SchemaFAQ && isList {
		faqs := c.faqItems(items)
		if c.cfg.GroupRelatedItems {
			c.chunkGrouped(list, faqs)
		} else {
			for _, item := range faqs {
				c.addItem(list, item)
			}
		}
	} else {
		list.addWindows(parsed.Body, c.cfg.ChunkSize, c.cfg.ChunkOverlap, lineOrSentenceBreak)
	}

	if len(list.chunks) == 0 {
		return nil, core.NewProcessingError(core.StageChunking, core.CodeNoChunks, false,
			fmt.Errorf("document %q has no chunkable records", docID))
	}
	return list.chunks, nil
}

func (c *RecordChunker) decode(text string) (any, error) {
	format := c.format
	if format == FormatAuto {
		format = FormatYAML
		if t := strings.TrimSpace(text); strings.HasPrefix(t, "[") || strings.HasPrefix(t, "{") {
			format = FormatJSON
		}
	}

	var root any
	if format == FormatJSON {
		dec := json.NewDecoder(strings.NewReader(text))
		dec.UseNumber()
		if err := dec.Decode(&root); err != nil {
			return nil, err
		}
		if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
			return nil, errors.New("unexpected data after top-level value")
		}
		return root, nil
	}

	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		return nil, err
	}
	return normalizeYAML(root), nil
}

// normalizeYAML converts map[any]any nodes into map[string]any.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeYAML(e)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = normalizeYAML(e)
		}
		return m
	case []any:
		for i, e := range t {
			t[i] = normalizeYAML(e)
		}
		return t
	}
	return v
}

// Analyze classifies a decoded collection.
func (c *RecordChunker) Analyze(root any) *core.SchemaProfile {
	profile := &core.SchemaProfile{
		Type:      core.SchemaGeneric,
		Depth:     depth(root, 0, c.cfg.MaxDepth),
		ItemCount: 1,
	}

	switch r := root.(type) {
	case []any:
		profile.ItemCount = len(r)
		keys := make(map[string]struct{})
		for _, item := range r {
			if m, ok := item.(map[string]any); ok {
				for k := range m {
					keys[k] = struct{}{}
				}
			}
		}
		profile.Properties = sortedKeys(keys)

		if first, ok := firstItem(r); ok && has(first, "question") && has(first, "answer") {
			profile.Type = core.SchemaFAQ
			if anyHas(r, c.cfg.GroupingKey) {
				profile.Relationships = append(profile.Relationships, core.RelationshipChunkReference)
			}
			if anyHas(r, c.cfg.CategoryKey) {
				profile.Relationships = append(profile.Relationships, core.RelationshipCategoryGrouping)
			}
		}

	case map[string]any:
		keys := make(map[string]struct{}, len(r))
		for k := range r {
			keys[k] = struct{}{}
		}
		profile.Properties = sortedKeys(keys)

		switch {
		case has(r, "title") || has(r, "sections"):
			profile.Type = core.SchemaDocumentation
			if sections, ok := r["sections"].([]any); ok {
				profile.ItemCount = len(sections)
			}
		case has(r, "config") || has(r, "settings") || has(r, "configuration"):
			profile.Type = core.SchemaConfiguration
		}
	}
	return profile
}

func firstItem(items []any) (map[string]any, bool) {
	if len(items) == 0 {
		return nil, false
	}
	m, ok := items[0].(map[string]any)
	return m, ok
}

// depth descends into arrays and objects. Descent stops at maxDepth and
// reports the current depth there, so deeper structures report maxDepth.
func depth(v any, current, maxDepth int) int {
	if current >= maxDepth {
		return current
	}
	deepest := current
	switch t := v.(type) {
	case []any:
		deepest = current + 1
		for _, e := range t {
			deepest = max(deepest, depth(e, current+1, maxDepth))
		}
	case map[string]any:
		deepest = current + 1
		for _, e := range t {
			deepest = max(deepest, depth(e, current+1, maxDepth))
		}
	}
	return deepest
}

func (c *RecordChunker) extract(schema core.SchemaType, root any) (string, error) {
	switch schema {
	case core.SchemaFAQ:
		items := c.faqItems(root.([]any))
		blocks := make([]string, len(items))
		for i, item := range items {
			blocks[i] = item.text()
		}
		return strings.Join(blocks, "\n\n"), nil
	case core.SchemaDocumentation:
		return extractDocumentation(root.(map[string]any)), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(root); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func extractDocumentation(doc map[string]any) string {
	var parts []string
	if title := stringify(doc["title"]); title != "" {
		parts = append(parts, title)
	}
	if desc := stringify(doc["description"]); desc != "" {
		parts = append(parts, desc)
	}

	addSection := func(heading, content string) {
		switch {
		case heading != "" && content != "":
			parts = append(parts, "## "+heading+"\n"+content)
		case heading != "":
			parts = append(parts, "## "+heading)
		case content != "":
			parts = append(parts, content)
		}
	}

	switch sections := doc["sections"].(type) {
	case []any:
		for _, s := range sections {
			if m, ok := s.(map[string]any); ok {
				addSection(firstField(m, "title", "heading", "name"), firstField(m, "content", "body", "text"))
			} else {
				addSection("", stringify(s))
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(sections))
		for k := range sections {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			addSection(k, stringify(sections[k]))
		}
	case nil:
	default:
		addSection("", stringify(sections))
	}
	return strings.Join(parts, "\n\n")
}

func firstField(m map[string]any, names ...string) string {
	for _, name := range names {
		if s := stringify(m[name]); s != "" {
			return s
		}
	}
	return ""
}

func has(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func anyHas(items []any, key string) bool {
	for _, item := range items {
		if m, ok := item.(map[string]any); ok && has(m, key) {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
