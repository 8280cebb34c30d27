package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitWindows(t *testing.T) {
	alphabet := []rune("abcdefghijklmnopqrstuvwxyz")

	tests := []struct {
		name    string
		size    int
		overlap int
		want    []window
	}{
		{
			name: "no overlap",
			size: 10,
			want: []window{{0, 10}, {10, 20}, {20, 26}},
		},
		{
			name:    "with overlap",
			size:    10,
			overlap: 4,
			want:    []window{{0, 10}, {6, 16}, {12, 22}, {18, 26}},
		},
		{
			name:    "overlap larger than window still advances",
			size:    10,
			overlap: 20,
			want:    []window{{0, 10}, {10, 20}, {20, 26}},
		},
		{
			name: "single window",
			size: 100,
			want: []window{{0, 26}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitWindows(alphabet, tt.size, tt.overlap, nil))
		})
	}
}

func TestSplitWindows_Empty(t *testing.T) {
	assert.Nil(t, splitWindows(nil, 10, 0, nil))
}

func TestSentenceBreak(t *testing.T) {
	text := []rune("Hello world. This is more text without an end")

	windows := splitWindows(text, 20, 0, sentenceBreak)
	require.NotEmpty(t, windows)
	assert.Equal(t, window{0, 12}, windows[0], "window should end after the terminator past the midpoint")
	assert.Equal(t, len(text), windows[len(windows)-1].end)
}

func TestSentenceBreak_IgnoresTerminatorBeforeMidpoint(t *testing.T) {
	text := []rune("Hi. abcdefghijklmnopqrstuvwxyz")
	assert.Equal(t, 20, sentenceBreak(text, 0, 20))
}

func TestLineOrSentenceBreak_PrefersLaterBreak(t *testing.T) {
	text := []rune("0123456789ab. cd\nefghijklmnop")
	// terminator at 12, newline at 16: the later one wins
	assert.Equal(t, 17, lineOrSentenceBreak(text, 0, 20))
}

func TestWrapLine(t *testing.T) {
	pieces := wrapLine("alpha beta gamma delta epsilon", 11)
	assert.Equal(t, []string{"alpha beta", "gamma delta", "epsilon"}, pieces)

	pieces = wrapLine("abcdefghijkl xy", 5)
	assert.Equal(t, []string{"abcde", "fghij", "kl xy"}, pieces)

	assert.Equal(t, []string{"short"}, wrapLine("short", 10))
}

func TestWrapLine_RuneSafe(t *testing.T) {
	pieces := wrapLine(strings.Repeat("é", 7), 3)
	assert.Equal(t, []string{"ééé", "ééé", "é"}, pieces)
}

func TestPackLines(t *testing.T) {
	blocks := packLines([]string{"aaaa", "bbbb", "cccc"}, 9)
	assert.Equal(t, [][]string{{"aaaa", "bbbb"}, {"cccc"}}, blocks)
}

func TestChunkList_AddSkipsBlank(t *testing.T) {
	list := &chunkList{docID: "doc"}
	list.add("  \n ", nil)
	list.add(" first ", nil)
	list.add("second", map[string]string{MetaChunkType: "x"})

	require.Len(t, list.chunks, 2)
	assert.Equal(t, "first", list.chunks[0].Text)
	assert.Equal(t, 0, list.chunks[0].Index)
	assert.Equal(t, "1", list.chunks[1].Metadata[MetaPosition])
	assert.Equal(t, "6", list.chunks[1].Metadata[MetaLength])
	assert.NotEqual(t, list.chunks[0].ID, list.chunks[1].ID)
}
