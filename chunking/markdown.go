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
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/docpipe/core"
)

const (
	// maxMetaScanLines bounds the heuristic metadata scan.
	maxMetaScanLines = 20
	// maxMetaLineLen ends the metadata scan at the first longer line.
	maxMetaLineLen = 120
	// maxMetaWords is the longest version or date line treated as metadata.
	maxMetaWords = 8
)

var (
	headerPattern   = regexp.MustCompile(`^(#{1,6})[ \t]+(.*?)[ \t#]*$`)
	keyValuePattern = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 _-]{0,29}?)[ \t]*:[ \t]+(\S.*)$`)
	versionPattern  = regexp.MustCompile(`(?i)\bversion\s+v?(\d+(?:\.\d+)+)\b`)
	datePattern     = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4})\b`)
)

// categoryKeywords is checked in order; the first category with a hit wins.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"calibration", []string{"calibration", "calibrate"}},
	{"faq", []string{"faq", "frequently asked", "q&a"}},
	{"manual", []string{"manual", "guide", "instructions", "how to"}},
	{"measurement", []string{"measurement", "measure", "reading", "sensor"}},
}

var technicalTerms = compileTerms(
	"api", "sdk", "json", "yaml", "http", "firmware", "sensor", "calibration",
	"voltage", "temperature", "pressure", "ph", "accuracy", "tolerance",
	"protocol", "configuration",
)

type term struct {
	name    string
	pattern *regexp.Regexp
}

func compileTerms(names ...string) []term {
	terms := make([]term, len(names))
	for i, name := range names {
		terms[i] = term{name: name, pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)}
	}
	return terms
}

// MarkdownChunker splits header-structured prose into chunks.
// It is stateless and safe for concurrent use.
type MarkdownChunker struct {
	cfg Config
}

// NewMarkdownChunker creates a MarkdownChunker after validating cfg.
func NewMarkdownChunker(cfg Config) (*MarkdownChunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MarkdownChunker{cfg: cfg}, nil
}

// Split parses text and chunks it in one step.
func (m *MarkdownChunker) Split(docID, text string) ([]core.Chunk, error) {
	parsed, err := m.Parse(text)
	if err != nil {
		return nil, err
	}
	return m.Chunk(parsed, docID)
}

// Parse strips the leading metadata block, locates headers and derives
// document metadata.
func (m *MarkdownChunker) Parse(text string) (*core.ParsedDocument, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, core.NewValidationError(core.CodeEmptyContent, "markdown document is empty", core.ErrEmptyContent)
	}

	meta, body := extractMetadata(text)
	headers := findHeaders(body)

	maxLevel := 0
	for _, h := range headers {
		maxLevel = max(maxLevel, h.Level)
	}
	meta["word_count"] = strconv.Itoa(len(strings.Fields(body)))
	meta["header_count"] = strconv.Itoa(len(headers))
	meta["max_header_level"] = strconv.Itoa(maxLevel)
	meta["category"] = detectCategory(text)
	meta["complexity"] = rateComplexity(body)
	if terms := detectTerms(body); len(terms) > 0 {
		meta["technical_terms"] = strings.Join(terms, ",")
	}

	return &core.ParsedDocument{
		Body:     body,
		Headers:  headers,
		Metadata: meta,
	}, nil
}

// Chunk splits a parsed markdown document. Header-bounded chunking is used
// when enabled and the body has headers; otherwise size-based windows.
func (m *MarkdownChunker) Chunk(parsed *core.ParsedDocument, docID string) ([]core.Chunk, error) {
	list := &chunkList{docID: docID}

	if m.cfg.ChunkByHeaders && len(parsed.Headers) > 0 {
		body := parsed.Body
		if preamble := body[:parsed.Headers[0].Start]; strings.TrimSpace(preamble) != "" {
			m.addSection(list, "", 0, "preamble", preamble)
		}
		for _, h := range parsed.Headers {
			section := body[h.Start:h.End]
			headerLine, content, _ := strings.Cut(section, "\n")
			m.addSection(list, strings.TrimSpace(headerLine), h.Level, h.Text, content)
		}
	} else {
		list.addWindows(parsed.Body, m.cfg.ChunkSize, m.cfg.ChunkOverlap, sentenceBreak)
	}

	if len(list.chunks) == 0 {
		return nil, core.NewProcessingError(core.StageChunking, core.CodeNoChunks, false,
			fmt.Errorf("document %q has no chunkable text", docID))
	}
	return list.chunks, nil
}

// addSection emits one chunk for a section, or several when the section is
// longer than the split threshold.
func (m *MarkdownChunker) addSection(list *chunkList, headerLine string, level int, name, content string) {
	sectionMeta := func() map[string]string {
		meta := map[string]string{
			MetaChunkType: core.ChunkTypeHeader,
			MetaSection:   name,
		}
		if level > 0 {
			meta[MetaHeaderLevel] = strconv.Itoa(level)
		}
		return meta
	}

	whole := strings.TrimSpace(headerLine + "\n" + content)
	if runeLen(whole) <= m.cfg.splitThreshold() {
		list.add(whole, sectionMeta())
		return
	}

	for i, part := range m.splitSection(headerLine, strings.Split(content, "\n")) {
		meta := sectionMeta()
		meta[MetaPart] = strconv.Itoa(i + 1)
		list.add(part, meta)
	}
}

// splitSection fills sub-chunks line by line up to ChunkSize. Each new
// sub-chunk repeats the header line when PreserveHeaders is set and is seeded
// with up to ChunkOverlap words of whole trailing lines from the previous one.
func (m *MarkdownChunker) splitSection(headerLine string, content []string) []string {
	limit := m.cfg.ChunkSize

	// A header too long to repeat is treated as ordinary content.
	if runeLen(headerLine) > limit/2 {
		content = append([]string{headerLine}, content...)
		headerLine = ""
	}
	repeat := m.cfg.PreserveHeaders && headerLine != ""

	width := limit
	if headerLine != "" {
		width = max(limit-runeLen(headerLine)-1, 1)
	}
	var lines []string
	for _, line := range content {
		lines = append(lines, wrapLine(line, width)...)
	}

	var parts []string
	head := func() []string {
		if headerLine != "" && (len(parts) == 0 || repeat) {
			return []string{headerLine}
		}
		return nil
	}

	cur := head()
	bodyStart := len(cur)
	for _, line := range lines {
		if len(cur) > bodyStart && joinedLen(append(cur[:len(cur):len(cur)], line)) > limit {
			parts = append(parts, strings.Join(cur, "\n"))
			seed := overlapSeed(cur[bodyStart:], m.cfg.ChunkOverlap)
			cur = head()
			bodyStart = len(cur)
			if candidate := append(append(cur[:len(cur):len(cur)], seed...), line); joinedLen(candidate) <= limit {
				cur = append(cur, seed...)
			}
		}
		cur = append(cur, line)
	}
	if len(cur) > bodyStart {
		parts = append(parts, strings.Join(cur, "\n"))
	}
	return parts
}

// overlapSeed walks backward over whole lines while their combined word
// count stays within words.
func overlapSeed(lines []string, words int) []string {
	if words <= 0 {
		return nil
	}
	count := 0
	i := len(lines)
	for i > 0 {
		n := len(strings.Fields(lines[i-1]))
		if count+n > words {
			break
		}
		count += n
		i--
	}
	if count == 0 {
		return nil
	}
	return append([]string(nil), lines[i:]...)
}

// extractMetadata returns metadata found ahead of the first header and the
// body with the recognized block removed.
func extractMetadata(text string) (map[string]string, string) {
	meta := make(map[string]string)
	lines := strings.Split(text, "\n")

	if strings.TrimSpace(lines[0]) == "---" {
		for j := 1; j < len(lines); j++ {
			if t := strings.TrimSpace(lines[j]); t == "---" || t == "..." {
				parseFrontMatter(strings.Join(lines[1:j], "\n"), meta)
				return meta, strings.Join(lines[j+1:], "\n")
			}
		}
	}

	end := 0
	found := 0
	title := ""
	firstText := -1
	for i := 0; i < len(lines) && i < maxMetaScanLines; i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if firstText < 0 {
			firstText = i
		}
		if headerPattern.MatchString(trimmed) || runeLen(line) > maxMetaLineLen {
			break
		}
		if key, value, ok := keyValue(trimmed); ok {
			meta[key] = value
			found++
			end = i + 1
			continue
		}
		short := len(strings.Fields(trimmed)) <= maxMetaWords
		if match := versionPattern.FindStringSubmatch(trimmed); match != nil && short {
			meta["version"] = match[1]
			found++
			end = i + 1
			continue
		}
		if match := datePattern.FindStringSubmatch(trimmed); match != nil && short {
			meta["date"] = match[1]
			found++
			end = i + 1
			continue
		}
		if found == 0 && i == firstText && !isTerminator(lastRune(trimmed)) {
			title = trimmed
			end = i + 1
			continue
		}
		break
	}

	if found == 0 {
		return meta, text
	}
	if title != "" {
		if _, ok := meta["title"]; !ok {
			meta["title"] = title
		}
	}
	return meta, strings.Join(lines[end:], "\n")
}

// keyValue recognizes a "key: value" line with a short key.
func keyValue(line string) (string, string, bool) {
	match := keyValuePattern.FindStringSubmatch(line)
	if match == nil {
		return "", "", false
	}
	key := strings.TrimSpace(match[1])
	if len(strings.Fields(key)) > 3 {
		return "", "", false
	}
	return normalizeKey(key), strings.TrimSpace(match[2]), true
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(key)
}

// parseFrontMatter decodes a YAML block into meta. Invalid YAML falls back
// to a line scan for key: value pairs.
func parseFrontMatter(block string, meta map[string]string) {
	var fields map[string]any
	if err := yaml.Unmarshal([]byte(block), &fields); err == nil {
		for k, v := range fields {
			meta[normalizeKey(k)] = stringify(v)
		}
		return
	}
	for _, line := range strings.Split(block, "\n") {
		if key, value, ok := keyValue(strings.TrimSpace(line)); ok {
			meta[key] = value
		}
	}
}

// findHeaders locates ATX headers outside fenced code blocks. Each header's
// End is the next header's Start or the end of body.
func findHeaders(body string) []core.Header {
	var headers []core.Header
	fence := ""
	offset := 0
	for _, line := range strings.SplitAfter(body, "\n") {
		start := offset
		offset += len(line)
		trimmed := strings.TrimSpace(line)

		if fence != "" {
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
			}
			continue
		}
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fence = trimmed[:3]
			continue
		}

		match := headerPattern.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
		if match == nil || strings.TrimSpace(match[2]) == "" {
			continue
		}
		headers = append(headers, core.Header{
			Level: len(match[1]),
			Text:  strings.TrimSpace(match[2]),
			Start: start,
		})
	}

	for i := range headers {
		if i+1 < len(headers) {
			headers[i].End = headers[i+1].Start
		} else {
			headers[i].End = len(body)
		}
	}
	return headers
}

func detectCategory(text string) string {
	lower := strings.ToLower(text)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.category
			}
		}
	}
	return "general"
}

func detectTerms(text string) []string {
	var found []string
	for _, t := range technicalTerms {
		if t.pattern.MatchString(text) {
			found = append(found, t.name)
		}
	}
	return found
}

// rateComplexity buckets the average number of words per non-empty line.
func rateComplexity(body string) string {
	lines, words := 0, 0
	for _, line := range strings.Split(body, "\n") {
		if n := len(strings.Fields(line)); n > 0 {
			lines++
			words += n
		}
	}
	if lines == 0 {
		return "simple"
	}
	avg := float64(words) / float64(lines)
	switch {
	case avg < 8:
		return "simple"
	case avg < 15:
		return "moderate"
	default:
		return "complex"
	}
}

func lastRune(s string) rune {
	r := []rune(s)
	if len(r) == 0 {
		return 0
	}
	return r[len(r)-1]
}

// stringify renders a decoded scalar or list as metadata text.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = stringify(e)
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + stringify(t[k])
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}
