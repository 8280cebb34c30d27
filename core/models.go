package core

import (
	"encoding/binary"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a 64-bit content-derived identifier.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hash.
// The same text will always produce the same ID.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkID derives a chunk identifier that is stable for identical input and
// configuration: the same document, position and text always hash the same.
func ChunkID(documentID string, index int, text string) ID {
	return IDFromContent(documentID + "\x00" + strconv.Itoa(index) + "\x00" + text)
}

// String renders the ID as fixed-width hex.
func (id ID) String() string {
	s := strconv.FormatUint(uint64(id), 16)
	return strings.Repeat("0", 16-len(s)) + s
}

// DocumentType is the declared type of a source document.
type DocumentType string

const (
	// DocumentTypeMarkdown is free-form header-structured prose.
	DocumentTypeMarkdown DocumentType = "markdown"
	// DocumentTypeRecords is a semi-structured record collection (JSON or YAML).
	DocumentTypeRecords DocumentType = "record-collection"
)

// ParseDocumentType maps a user-supplied type name to a DocumentType.
func ParseDocumentType(s string) (DocumentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md", "text":
		return DocumentTypeMarkdown, nil
	case "record-collection", "records", "record", "json", "yaml":
		return DocumentTypeRecords, nil
	}
	return "", NewValidationError(CodeUnsupportedType, strconv.Quote(s), ErrUnsupportedType)
}

// DetectDocumentType infers the type from a filename extension.
func DetectDocumentType(filename string) (DocumentType, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown", ".txt":
		return DocumentTypeMarkdown, nil
	case ".json", ".yaml", ".yml":
		return DocumentTypeRecords, nil
	}
	return "", NewValidationError(CodeUnsupportedType, "cannot infer type of "+strconv.Quote(filename), ErrUnsupportedType)
}

// SourceDocument is the immutable input to the pipeline.
type SourceDocument struct {
	ID       string
	Filename string
	Type     DocumentType
	Content  string
}

// Header is a markdown header and the byte range of its section.
type Header struct {
	Level int
	Text  string
	Start int // offset of the header line
	End   int // offset where the section ends (next header or end of body)
}

// SchemaType classifies the shape of a record collection.
type SchemaType string

const (
	SchemaFAQ           SchemaType = "faq"
	SchemaDocumentation SchemaType = "documentation"
	SchemaConfiguration SchemaType = "configuration"
	SchemaGeneric       SchemaType = "generic"
)

// Relationship names recorded on a SchemaProfile.
const (
	RelationshipChunkReference   = "chunk-reference"
	RelationshipCategoryGrouping = "category-grouping"
)

// SchemaProfile describes a record collection.
type SchemaProfile struct {
	Type          SchemaType
	Properties    []string
	Depth         int // capped at the configured maximum
	ItemCount     int
	Relationships []string
}

// ParsedDocument is produced once per ingestion by a chunker and discarded
// after chunking.
type ParsedDocument struct {
	Body     string
	Headers  []Header       // markdown only
	Schema   *SchemaProfile // record collections only
	Metadata map[string]string

	// Records holds the decoded collection so chunking does not decode twice.
	Records any
}

// Chunk types recorded under the chunk_type metadata key.
const (
	ChunkTypeHeader   = "header-based"
	ChunkTypeSize     = "size-based"
	ChunkTypeFAQGroup = "faq-group"
	ChunkTypeFAQItem  = "faq-item"
)

// Chunk is a bounded unit of document text, the unit of embedding and storage.
type Chunk struct {
	ID        ID
	Index     int
	Text      string
	Metadata  map[string]string
	Embedding []float32
}

// Stage is one named step of the ingestion pipeline.
type Stage string

const (
	StageParsing   Stage = "parsing"
	StageChunking  Stage = "chunking"
	StageEmbedding Stage = "embedding"
	StageStoring   Stage = "storing"
	StageCompleted Stage = "completed"
	StageError     Stage = "error"
)

// Progress returns the progress percentage reported on entering the stage.
func (s Stage) Progress() int {
	switch s {
	case StageParsing:
		return 25
	case StageChunking:
		return 50
	case StageEmbedding:
		return 75
	case StageStoring:
		return 90
	case StageCompleted:
		return 100
	}
	return 0
}

// Order returns the position of the stage in the pipeline.
// StageError sorts after every other stage.
func (s Stage) Order() int {
	switch s {
	case StageParsing:
		return 1
	case StageChunking:
		return 2
	case StageEmbedding:
		return 3
	case StageStoring:
		return 4
	case StageCompleted:
		return 5
	case StageError:
		return 6
	}
	return 0
}

// Status is the coarse outcome of an ingestion job.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// ProcessingState is the orchestrator-owned state of one ingestion job.
type ProcessingState struct {
	Stage    Stage
	Progress int
	Status   Status
	Error    string
}

// ProcessingResult is returned by the pipeline for every document.
type ProcessingResult struct {
	DocumentID     string
	Filename       string
	Chunks         []Chunk
	Status         Status
	Metadata       map[string]string
	ChunkCount     int
	EmbeddingCount int
	ProcessedAt    time.Time
	State          ProcessingState
}
