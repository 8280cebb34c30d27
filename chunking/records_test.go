package chunking

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docpipe/core"
)

func newRecordChunker(t *testing.T, opts ...ConfigOption) *RecordChunker {
	t.Helper()
	c, err := NewRecordChunker(NewConfig(opts...))
	require.NoError(t, err)
	return c
}

type faqRecord struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
	ChunkID  string `json:"chunk_id,omitempty"`
}

func faqJSON(t *testing.T, records []faqRecord) string {
	t.Helper()
	data, err := json.Marshal(records)
	require.NoError(t, err)
	return string(data)
}

func assertWholePairs(t *testing.T, chunks []core.Chunk, limit int) {
	t.Helper()
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), limit, "chunk %d too long", i)
		assert.Equal(t, strings.Count(c.Text, "Q: "), strings.Count(c.Text, "A: "), "chunk %d splits a pair", i)
	}
}

func TestRecordChunker_Classify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  core.SchemaType
		items int
	}{
		{"faq", `[{"question":"q","answer":"a"}]`, core.SchemaFAQ, 1},
		{"array without questions", `[{"name":"x"},{"name":"y"}]`, core.SchemaGeneric, 2},
		{"documentation by title", `{"title":"Guide"}`, core.SchemaDocumentation, 1},
		{"documentation by sections", `{"sections":[{"title":"a"},{"title":"b"}]}`, core.SchemaDocumentation, 2},
		{"configuration", `{"settings":{"debug":true}}`, core.SchemaConfiguration, 1},
		{"generic object", `{"foo":1}`, core.SchemaGeneric, 1},
	}

	c := newRecordChunker(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := c.Parse(tt.input)
			require.NoError(t, err)
			require.NotNil(t, parsed.Schema)
			assert.Equal(t, tt.want, parsed.Schema.Type)
			assert.Equal(t, tt.items, parsed.Schema.ItemCount)
			assert.Equal(t, string(tt.want), parsed.Metadata["schema_type"])
		})
	}
}

func TestRecordChunker_AnalyzeEmptyCollection(t *testing.T) {
	c := newRecordChunker(t)
	profile := c.Analyze([]any{})
	assert.Equal(t, core.SchemaGeneric, profile.Type)
	assert.Zero(t, profile.ItemCount)
	assert.Empty(t, profile.Relationships)
}

func TestRecordChunker_Relationships(t *testing.T) {
	c := newRecordChunker(t)
	parsed, err := c.Parse(`[{"question":"q","answer":"a","chunk_id":"c1"},{"question":"q2","answer":"a2","category":"x"}]`)
	require.NoError(t, err)

	assert.Equal(t, []string{core.RelationshipChunkReference, core.RelationshipCategoryGrouping}, parsed.Schema.Relationships)
	assert.Equal(t, []string{"answer", "category", "chunk_id", "question"}, parsed.Schema.Properties)
}

func TestRecordChunker_DepthIsCapped(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxDepth int
		want     int
	}{
		{"flat array", `[1,2]`, 10, 1},
		{"nested object", `{"a":{"b":1}}`, 10, 2},
		{"deep nesting capped", strings.Repeat("[", 15) + "1" + strings.Repeat("]", 15), 10, 10},
		{"small cap", `{"a":{"b":{"c":{"d":1}}}}`, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newRecordChunker(t, WithMaxDepth(tt.maxDepth))
			root, err := c.decode(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Analyze(root).Depth)
		})
	}
}

func TestRecordChunker_FAQGroupedByCategory(t *testing.T) {
	categories := []string{"setup", "usage", "billing", "support"}
	var records []faqRecord
	for i := 0; i < 20; i++ {
		records = append(records, faqRecord{
			Question: fmt.Sprintf("Question %d?", i),
			Answer:   fmt.Sprintf("Answer %d.", i),
			Category: categories[i%4],
		})
	}

	c := newRecordChunker(t)
	chunks, err := c.Split("faq-1", faqJSON(t, records))
	require.NoError(t, err)

	require.Len(t, chunks, 4)
	for i, chunk := range chunks {
		assert.Equal(t, core.ChunkTypeFAQGroup, chunk.Metadata[MetaChunkType])
		assert.Equal(t, categories[i], chunk.Metadata[MetaGroup])
		assert.Equal(t, "category", chunk.Metadata[MetaGroupBy])
		assert.Equal(t, "5", chunk.Metadata[MetaItemCount])
		assert.Equal(t, 5, strings.Count(chunk.Text, "Q: "))
	}
	assertWholePairs(t, chunks, 768)
}

func TestRecordChunker_OversizedGroupSplitsOnPairs(t *testing.T) {
	var records []faqRecord
	for i := 0; i < 6; i++ {
		records = append(records, faqRecord{
			Question: fmt.Sprintf("Question %d?", i),
			Answer:   strings.Repeat("lorem ", 10),
			Category: "a",
		})
	}
	records = append(records, faqRecord{Question: "Short?", Answer: "Yes.", Category: "b"})

	c := newRecordChunker(t, WithChunkSize(100), WithChunkOverlap(0))
	chunks, err := c.Split("faq-1", faqJSON(t, records))
	require.NoError(t, err)

	require.Len(t, chunks, 7)
	for i := 0; i < 6; i++ {
		assert.Equal(t, "a", chunks[i].Metadata[MetaGroup])
		assert.Equal(t, fmt.Sprint(i+1), chunks[i].Metadata[MetaPart])
		assert.Equal(t, "1", chunks[i].Metadata[MetaItemCount])
	}
	assert.Equal(t, "b", chunks[6].Metadata[MetaGroup])
	assertWholePairs(t, chunks, 150)
}

func TestRecordChunker_GroupingVariance(t *testing.T) {
	tests := []struct {
		name    string
		records []faqRecord
		wantBy  string
		groups  []string
	}{
		{
			name: "balanced categories win",
			records: []faqRecord{
				{Question: "q1", Answer: "a1", Category: "x", ChunkID: "k1"},
				{Question: "q2", Answer: "a2", Category: "x", ChunkID: "k1"},
				{Question: "q3", Answer: "a3", Category: "y", ChunkID: "k1"},
				{Question: "q4", Answer: "a4", Category: "y", ChunkID: "k2"},
			},
			wantBy: "category",
			groups: []string{"x", "y"},
		},
		{
			name: "balanced keys win",
			records: []faqRecord{
				{Question: "q1", Answer: "a1", Category: "x", ChunkID: "k1"},
				{Question: "q2", Answer: "a2", Category: "x", ChunkID: "k1"},
				{Question: "q3", Answer: "a3", Category: "x", ChunkID: "k2"},
				{Question: "q4", Answer: "a4", Category: "y", ChunkID: "k2"},
			},
			wantBy: "chunk_id",
			groups: []string{"k1", "k2"},
		},
		{
			name: "tie goes to category",
			records: []faqRecord{
				{Question: "q1", Answer: "a1", Category: "x", ChunkID: "k1"},
				{Question: "q2", Answer: "a2", Category: "y", ChunkID: "k1"},
				{Question: "q3", Answer: "a3", Category: "x", ChunkID: "k2"},
				{Question: "q4", Answer: "a4", Category: "y", ChunkID: "k2"},
			},
			wantBy: "category",
			groups: []string{"x", "y"},
		},
		{
			name: "key only",
			records: []faqRecord{
				{Question: "q1", Answer: "a1", ChunkID: "k1"},
				{Question: "q2", Answer: "a2", ChunkID: "k2"},
				{Question: "q3", Answer: "a3"},
			},
			wantBy: "chunk_id",
			groups: []string{"k1", "k2", "ungrouped"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newRecordChunker(t)
			chunks, err := c.Split("faq-1", faqJSON(t, tt.records))
			require.NoError(t, err)

			var groups []string
			for _, chunk := range chunks {
				assert.Equal(t, tt.wantBy, chunk.Metadata[MetaGroupBy])
				groups = append(groups, chunk.Metadata[MetaGroup])
			}
			assert.Equal(t, tt.groups, groups)
		})
	}
}

func TestRecordChunker_NoGroupingFields(t *testing.T) {
	records := []faqRecord{{Question: "q1", Answer: "a1"}, {Question: "q2", Answer: "a2"}}
	c := newRecordChunker(t)
	chunks, err := c.Split("faq-1", faqJSON(t, records))
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, "Q: q1\nA: a1", chunks[0].Text)
	assert.Equal(t, core.ChunkTypeFAQItem, chunks[0].Metadata[MetaChunkType])
}

func TestRecordChunker_GroupingDisabled(t *testing.T) {
	records := []faqRecord{
		{Question: "q1", Answer: "a1", Category: "x"},
		{Question: "q2", Answer: "a2", Category: "x"},
		{Question: "q3", Answer: "a3", Category: "x"},
	}
	c := newRecordChunker(t, WithGroupRelatedItems(false))
	chunks, err := c.Split("faq-1", faqJSON(t, records))
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	for _, chunk := range chunks {
		assert.Equal(t, core.ChunkTypeFAQItem, chunk.Metadata[MetaChunkType])
		assert.Contains(t, chunk.Text, "Category: x")
	}
}

func TestRecordChunker_OversizedPairRepeatsQuestion(t *testing.T) {
	records := []faqRecord{{Question: "How do I reset?", Answer: strings.Repeat("press the button ", 25)}}
	c := newRecordChunker(t, WithChunkSize(100), WithGroupRelatedItems(false))
	chunks, err := c.Split("faq-1", faqJSON(t, records))
	require.NoError(t, err)

	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.True(t, strings.HasPrefix(chunk.Text, "Q: How do I reset?\n"))
		assert.LessOrEqual(t, len(chunk.Text), 100)
	}
	assert.True(t, strings.HasPrefix(chunks[0].Text, "Q: How do I reset?\nA: press"))
}

func TestRecordChunker_LongQuestionStaysWithAnswer(t *testing.T) {
	question := strings.Repeat("q", 60) + " reset?"
	answer := strings.TrimSpace(strings.Repeat("press the button ", 15))
	c := newRecordChunker(t, WithChunkSize(100), WithGroupRelatedItems(false))
	chunks, err := c.Split("faq-1", faqJSON(t, []faqRecord{{Question: question, Answer: answer}}))
	require.NoError(t, err)

	require.Greater(t, len(chunks), 1)
	var rest []string
	for i, chunk := range chunks {
		assert.True(t, strings.HasPrefix(chunk.Text, "Q: "+question+"\n"), "chunk %d lacks the question", i)
		assert.LessOrEqual(t, len(chunk.Text), 150, "chunk %d too long", i)
		_, body, _ := strings.Cut(chunk.Text, "\n")
		assert.NotEmpty(t, strings.TrimSpace(body), "chunk %d has no answer text", i)
		rest = append(rest, body)
	}
	assert.True(t, strings.HasPrefix(chunks[0].Text, "Q: "+question+"\nA: press"))
	assert.Equal(t, strings.Fields("A: "+answer), strings.Fields(strings.Join(rest, " ")))
}

func TestRecordChunker_OverlongQuestionCarriesFirstAnswer(t *testing.T) {
	question := strings.Repeat("why ", 24) + "finally?"
	answer := strings.TrimSpace(strings.Repeat("because ", 20))
	c := newRecordChunker(t, WithChunkSize(40), WithGroupRelatedItems(false))
	chunks, err := c.Split("faq-1", faqJSON(t, []faqRecord{{Question: question, Answer: answer}}))
	require.NoError(t, err)

	require.Greater(t, len(chunks), 2)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "Q: why"))
	var joined []string
	found := false
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Text), 60, "chunk %d too long", i)
		if strings.Contains(chunk.Text, "finally?") {
			found = true
			assert.Contains(t, chunk.Text, "finally?\nA: because")
		}
		joined = append(joined, chunk.Text)
	}
	assert.True(t, found)
	assert.Equal(t, strings.Fields("Q: "+question+" A: "+answer), strings.Fields(strings.Join(joined, " ")))
}

func TestRecordChunker_Documentation(t *testing.T) {
	input := `{"title":"Guide","description":"Desc","sections":[{"title":"Install","content":"Run it."},"Loose text"]}`
	c := newRecordChunker(t)
	parsed, err := c.Parse(input)
	require.NoError(t, err)

	assert.Equal(t, "Guide\n\nDesc\n\n## Install\nRun it.\n\nLoose text", parsed.Body)

	chunks, err := c.Chunk(parsed, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, core.ChunkTypeSize, chunks[0].Metadata[MetaChunkType])
}

func TestRecordChunker_ConfigurationRendersSortedJSON(t *testing.T) {
	c := newRecordChunker(t)
	parsed, err := c.Parse(`{"settings":{"b":1,"a":2.50}}`)
	require.NoError(t, err)

	assert.Equal(t, "{\n  \"settings\": {\n    \"a\": 2.50,\n    \"b\": 1\n  }\n}", parsed.Body)
}

func TestRecordChunker_GenericWindowsBreakAtLines(t *testing.T) {
	var items []map[string]string
	for i := 0; i < 30; i++ {
		items = append(items, map[string]string{"name": fmt.Sprintf("item-%02d", i)})
	}
	data, err := json.Marshal(items)
	require.NoError(t, err)

	c := newRecordChunker(t, WithChunkSize(80), WithChunkOverlap(0))
	chunks, err := c.Split("doc-1", string(data))
	require.NoError(t, err)

	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Text), 80)
		assert.Equal(t, core.ChunkTypeSize, chunk.Metadata[MetaChunkType])
	}
}

func TestRecordChunker_YAML(t *testing.T) {
	input := "- question: What is it?\n  answer: A sensor.\n  category: basics\n- question: How?\n  answer: Carefully.\n  category: basics\n"
	c := newRecordChunker(t)
	chunks, err := c.Split("doc-1", input)
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, "Q: What is it?\nA: A sensor.\nCategory: basics\n\nQ: How?\nA: Carefully.\nCategory: basics", chunks[0].Text)
}

func TestRecordChunker_ForcedFormat(t *testing.T) {
	c, err := NewRecordChunker(DefaultConfig(), WithFormat(FormatJSON))
	require.NoError(t, err)

	_, err = c.Parse("key: value")
	require.Error(t, err)
	assert.Equal(t, core.CodeInvalidRecords, core.CodeOf(err))
}

func TestFormatForFilename(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatForFilename("a.JSON"))
	assert.Equal(t, FormatYAML, FormatForFilename("a.yml"))
	assert.Equal(t, FormatAuto, FormatForFilename("a.txt"))
}

func TestRecordChunker_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  string
	}{
		{"empty", "   ", core.CodeEmptyContent},
		{"broken json", `{"a":`, core.CodeInvalidRecords},
		{"trailing data", `{"a":1} {"b":2}`, core.CodeInvalidRecords},
		{"scalar root", "just some text", core.CodeInvalidRecords},
		{"empty array", "[]", core.CodeInvalidRecords},
		{"empty object", "{}", core.CodeInvalidRecords},
	}

	c := newRecordChunker(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Parse(tt.input)
			require.Error(t, err)
			assert.Equal(t, core.KindValidation, core.KindOf(err))
			assert.Equal(t, tt.code, core.CodeOf(err))
			assert.False(t, core.IsRecoverable(err))
		})
	}
}

func TestRecordChunker_Deterministic(t *testing.T) {
	input := `{"config":{"z":1,"m":{"b":[1,2,3],"a":"x"}},"name":"svc"}`
	c := newRecordChunker(t, WithChunkSize(20), WithChunkOverlap(5))

	first, err := c.Split("doc-1", input)
	require.NoError(t, err)
	second, err := c.Split("doc-1", input)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSizeVariance(t *testing.T) {
	groups := []faqGroup{{items: make([]faqItem, 3)}, {items: make([]faqItem, 1)}}
	assert.InDelta(t, 1.0, sizeVariance(groups), 1e-9)
	assert.Zero(t, sizeVariance(nil))
}
