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

	"github.com/poiesic/docpipe/core"
)

// faqItem is one question/answer record.
type faqItem struct {
	question    string
	answer      string
	category    string
	tags        string
	key         string
	hasCategory bool
	hasKey      bool
}

func (f faqItem) questionLine() string {
	if f.question == "" {
		return ""
	}
	return "Q: " + f.question
}

// body returns the lines that follow the question line.
func (f faqItem) body() []string {
	var lines []string
	if f.answer != "" {
		lines = append(lines, strings.Split("A: "+f.answer, "\n")...)
	}
	if f.category != "" {
		lines = append(lines, "Category: "+f.category)
	}
	if f.tags != "" {
		lines = append(lines, "Tags: "+f.tags)
	}
	return lines
}

func (f faqItem) text() string {
	lines := f.body()
	if q := f.questionLine(); q != "" {
		lines = append([]string{q}, lines...)
	}
	return strings.Join(lines, "\n")
}

type faqGroup struct {
	name  string
	items []faqItem
}

func (c *RecordChunker) faqItems(records []any) []faqItem {
	items := make([]faqItem, 0, len(records))
	for _, raw := range records {
		m, ok := raw.(map[string]any)
		if !ok {
			if s := stringify(raw); s != "" {
				items = append(items, faqItem{answer: s})
			}
			continue
		}

		item := faqItem{
			question: strings.TrimSpace(stringify(m["question"])),
			answer:   strings.TrimSpace(stringify(m["answer"])),
			tags:     stringify(m["tags"]),
		}
		if v, ok := m[c.cfg.CategoryKey]; ok && v != nil {
			item.category = stringify(v)
			item.hasCategory = item.category != ""
		}
		if v, ok := m[c.cfg.GroupingKey]; ok && v != nil {
			item.key = stringify(v)
			item.hasKey = item.key != ""
		}
		if item.question == "" && item.answer == "" {
			item.answer = stringify(m)
		}
		if item.answer == "" && item.question == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}

// chunkGrouped groups items by category and by grouping key and keeps
// whichever grouping has the lower variance of group sizes. Ties go to the
// category grouping.
func (c *RecordChunker) chunkGrouped(list *chunkList, items []faqItem) {
	var hasCategory, hasKey bool
	for _, item := range items {
		hasCategory = hasCategory || item.hasCategory
		hasKey = hasKey || item.hasKey
	}

	byCategory := func(f faqItem) (string, bool) { return f.category, f.hasCategory }
	byKey := func(f faqItem) (string, bool) { return f.key, f.hasKey }

	var groups []faqGroup
	var groupBy string
	switch {
	case hasCategory && hasKey:
		categoryGroups := groupItems(items, byCategory)
		keyGroups := groupItems(items, byKey)
		if sizeVariance(keyGroups) < sizeVariance(categoryGroups) {
			groups, groupBy = keyGroups, c.cfg.GroupingKey
		} else {
			groups, groupBy = categoryGroups, c.cfg.CategoryKey
		}
	case hasCategory:
		groups, groupBy = groupItems(items, byCategory), c.cfg.CategoryKey
	case hasKey:
		groups, groupBy = groupItems(items, byKey), c.cfg.GroupingKey
	default:
		for _, item := range items {
			c.addItem(list, item)
		}
		return
	}

	for _, g := range groups {
		c.addGroup(list, g, groupBy)
	}
}

// groupItems buckets items by field in first-appearance order. Items
// without the field share one "ungrouped" bucket.
func groupItems(items []faqItem, field func(faqItem) (string, bool)) []faqGroup {
	var groups []faqGroup
	index := make(map[string]int)
	for _, item := range items {
		name, ok := field(item)
		if !ok {
			name = ungroupedName
		}
		i, seen := index[name]
		if !seen {
			i = len(groups)
			index[name] = i
			groups = append(groups, faqGroup{name: name})
		}
		groups[i].items = append(groups[i].items, item)
	}
	return groups
}

// sizeVariance is the population variance of the group sizes.
func sizeVariance(groups []faqGroup) float64 {
	if len(groups) == 0 {
		return 0
	}
	total := 0
	for _, g := range groups {
		total += len(g.items)
	}
	mean := float64(total) / float64(len(groups))
	var sum float64
	for _, g := range groups {
		d := float64(len(g.items)) - mean
		sum += d * d
	}
	return sum / float64(len(groups))
}

// addGroup emits a group as one chunk, or splits it item by item when it is
// longer than the split threshold. A question and its answer always stay
// together.
func (c *RecordChunker) addGroup(list *chunkList, g faqGroup, groupBy string) {
	meta := func(count int) map[string]string {
		return map[string]string{
			MetaChunkType: core.ChunkTypeFAQGroup,
			MetaGroup:     g.name,
			MetaGroupBy:   groupBy,
			MetaItemCount: strconv.Itoa(count),
		}
	}

	blocks := make([]string, len(g.items))
	for i, item := range g.items {
		blocks[i] = item.text()
	}
	if whole := strings.Join(blocks, "\n\n"); runeLen(whole) <= c.cfg.splitThreshold() {
		list.add(whole, meta(len(blocks)))
		return
	}

	part := 0
	var cur []string
	curLen := 0
	flush := func() {
		if len(cur) == 0 {
			return
		}
		part++
		m := meta(len(cur))
		m[MetaPart] = strconv.Itoa(part)
		list.add(strings.Join(cur, "\n\n"), m)
		cur, curLen = nil, 0
	}

	for i, block := range blocks {
		n := runeLen(block)
		if n > c.cfg.splitThreshold() {
			flush()
			for _, p := range c.splitItem(g.items[i]) {
				part++
				m := meta(1)
				m[MetaPart] = strconv.Itoa(part)
				list.add(p, m)
			}
			continue
		}
		if len(cur) > 0 && curLen+2+n > c.cfg.ChunkSize {
			flush()
		}
		if len(cur) > 0 {
			curLen += 2
		}
		cur = append(cur, block)
		curLen += n
	}
	flush()
}

// addItem emits one item as its own chunk.
func (c *RecordChunker) addItem(list *chunkList, item faqItem) {
	meta := func() map[string]string {
		return map[string]string{MetaChunkType: core.ChunkTypeFAQItem}
	}
	text := item.text()
	if runeLen(text) <= c.cfg.splitThreshold() {
		list.add(text, meta())
		return
	}
	for i, p := range c.splitItem(item) {
		m := meta()
		m[MetaPart] = strconv.Itoa(i + 1)
		list.add(p, m)
	}
}

// splitItem splits an oversized item. Every part starts with the question
// line and carries a word-bounded window of the answer. Parts stay within
// ChunkSize when the question is short, and within the split threshold
// otherwise. A question too long for the threshold is wrapped on its own and
// its last fragment carries the first answer window.
func (c *RecordChunker) splitItem(item faqItem) []string {
	limit := c.cfg.ChunkSize
	threshold := c.cfg.splitThreshold()
	q := item.questionLine()

	if q == "" {
		return wrapBlocks(item.body(), limit, limit)
	}

	width := limit - runeLen(q) - 1
	if runeLen(q) > limit/2 {
		width = threshold - runeLen(q) - 1
	}
	if width >= 1 {
		var parts []string
		for _, block := range wrapBlocks(item.body(), width, width) {
			parts = append(parts, q+"\n"+block)
		}
		if len(parts) == 0 {
			parts = append(parts, q)
		}
		return parts
	}

	parts := wrapBlocks([]string{q}, limit, limit)
	last := parts[len(parts)-1]
	room := threshold - runeLen(last) - 1
	aw := max(min(room, limit), 1)
	answer := wrapBlocks(item.body(), aw, aw)
	if len(answer) > 0 && room >= 1 {
		parts[len(parts)-1] = last + "\n" + answer[0]
		answer = answer[1:]
	}
	return append(parts, answer...)
}

// wrapBlocks wraps lines to lineWidth and packs them into blocks of at most
// blockWidth runes.
func wrapBlocks(lines []string, lineWidth, blockWidth int) []string {
	var wrapped []string
	for _, line := range lines {
		wrapped = append(wrapped, wrapLine(line, lineWidth)...)
	}
	var blocks []string
	for _, block := range packLines(wrapped, blockWidth) {
		blocks = append(blocks, strings.Join(block, "\n"))
	}
	return blocks
}
