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
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/docpipe/core"
)

// Chunk metadata keys.
const (
	MetaChunkType   = "chunk_type"
	MetaPosition    = "position"
	MetaLength      = "length"
	MetaSection     = "section"
	MetaHeaderLevel = "header_level"
	MetaPart        = "part"
	MetaStartOffset = "start_offset"
	MetaEndOffset   = "end_offset"
	MetaGroup       = "group"
	MetaGroupBy     = "group_by"
	MetaItemCount   = "item_count"
)

// window is a half-open range of rune offsets into a text.
type window struct {
	start, end int
}

// breakFunc moves a window end backward to a preferred break point.
// It returns end unchanged when no suitable break exists.
type breakFunc func(text []rune, start, end int) int

// splitWindows covers text with windows of at most size runes. Each window
// after the first starts overlap runes before the previous end, or at the
// previous end when that would not move forward.
func splitWindows(text []rune, size, overlap int, brk breakFunc) []window {
	n := len(text)
	if n == 0 || size < 1 {
		return nil
	}

	var out []window
	start := 0
	for start < n {
		end := start + size
		if end >= n {
			end = n
		} else if brk != nil {
			end = brk(text, start, end)
		}
		out = append(out, window{start: start, end: end})
		if end >= n {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// sentenceBreak ends the window just after the last sentence terminator
// past its midpoint.
func sentenceBreak(text []rune, start, end int) int {
	mid := start + (end-start)/2
	for i := end - 1; i > mid; i-- {
		if isTerminator(text[i]) {
			return i + 1
		}
	}
	return end
}

// lineOrSentenceBreak ends the window at the later of the last newline and
// the last sentence terminator past its midpoint.
func lineOrSentenceBreak(text []rune, start, end int) int {
	mid := start + (end-start)/2
	for i := end - 1; i > mid; i-- {
		if text[i] == '\n' || isTerminator(text[i]) {
			return i + 1
		}
	}
	return end
}

// chunkList accumulates chunks for one document, assigning positions and IDs.
type chunkList struct {
	docID  string
	chunks []core.Chunk
}

// add appends text as the next chunk. Blank text is skipped.
func (l *chunkList) add(text string, meta map[string]string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if meta == nil {
		meta = make(map[string]string)
	}
	idx := len(l.chunks)
	meta[MetaPosition] = strconv.Itoa(idx)
	meta[MetaLength] = strconv.Itoa(utf8.RuneCountInString(text))
	l.chunks = append(l.chunks, core.Chunk{
		ID:       core.ChunkID(l.docID, idx, text),
		Index:    idx,
		Text:     text,
		Metadata: meta,
	})
}

// addWindows splits text into size windows and appends each as a size-based chunk.
func (l *chunkList) addWindows(text string, size, overlap int, brk breakFunc) {
	runes := []rune(text)
	for _, w := range splitWindows(runes, size, overlap, brk) {
		l.add(string(runes[w.start:w.end]), map[string]string{
			MetaChunkType:   core.ChunkTypeSize,
			MetaStartOffset: strconv.Itoa(w.start),
			MetaEndOffset:   strconv.Itoa(w.end),
		})
	}
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// joinedLen is the rune length of strings.Join(lines, "\n").
func joinedLen(lines []string) int {
	if len(lines) == 0 {
		return 0
	}
	n := len(lines) - 1
	for _, line := range lines {
		n += runeLen(line)
	}
	return n
}

// wrapLine breaks line into pieces of at most width runes on word
// boundaries. Words longer than width are cut.
func wrapLine(line string, width int) []string {
	if width < 1 || runeLen(line) <= width {
		return []string{line}
	}

	var pieces []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			pieces = append(pieces, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, word := range strings.Fields(line) {
		wl := runeLen(word)
		for wl > width {
			flush()
			r := []rune(word)
			pieces = append(pieces, string(r[:width]))
			word = string(r[width:])
			wl -= width
		}
		if wl == 0 {
			continue
		}
		if curLen > 0 && curLen+1+wl > width {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(word)
		curLen += wl
	}
	flush()
	return pieces
}

// packLines groups lines into blocks whose joined length stays within width.
// Lines must already be at most width runes.
func packLines(lines []string, width int) [][]string {
	var blocks [][]string
	var cur []string
	for _, line := range lines {
		if len(cur) > 0 && joinedLen(append(cur[:len(cur):len(cur)], line)) > width {
			blocks = append(blocks, cur)
			cur = nil
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}
