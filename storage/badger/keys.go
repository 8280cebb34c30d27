package badger

import "encoding/binary"

const (
	jobPrefix   = "docjob:"
	chunkPrefix = "docchk:"
)

// makeJobKey generates the key of a document's job record.
func makeJobKey(docID string) []byte {
	return []byte(jobPrefix + docID)
}

// makeChunkPrefix generates the key prefix shared by all chunks of a document.
// Format: prefix:docID\x00
// The NUL terminator keeps "a" from matching the chunks of "a:b".
func makeChunkPrefix(docID string) []byte {
	buf := make([]byte, 0, len(chunkPrefix)+len(docID)+1)
	buf = append(buf, chunkPrefix...)
	buf = append(buf, docID...)
	return append(buf, 0)
}

// makeChunkKey generates the key of one chunk.
// Format: prefix:docID\x00index
func makeChunkKey(docID string, index int) []byte {
	prefix := makeChunkPrefix(docID)
	buf := make([]byte, len(prefix)+4)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort matches chunk order
	binary.BigEndian.PutUint32(buf[offset:], uint32(index))
	return buf
}
