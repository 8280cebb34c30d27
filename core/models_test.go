package core

import (
	"errors"
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "same content produces same ID", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	if IDFromContent("content1") == IDFromContent("content2") {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestChunkID(t *testing.T) {
	a := ChunkID("doc", 0, "text")
	if a != ChunkID("doc", 0, "text") {
		t.Errorf("ChunkID() not stable")
	}
	if a == ChunkID("doc", 1, "text") {
		t.Errorf("ChunkID() ignores index")
	}
	if a == ChunkID("other", 0, "text") {
		t.Errorf("ChunkID() ignores document id")
	}
}

func TestID_String(t *testing.T) {
	if got := ID(0xff).String(); got != "00000000000000ff" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseDocumentType(t *testing.T) {
	tests := []struct {
		in      string
		want    DocumentType
		wantErr bool
	}{
		{in: "markdown", want: DocumentTypeMarkdown},
		{in: " MD ", want: DocumentTypeMarkdown},
		{in: "record-collection", want: DocumentTypeRecords},
		{in: "json", want: DocumentTypeRecords},
		{in: "yaml", want: DocumentTypeRecords},
		{in: "pdf", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDocumentType(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedType) {
					t.Errorf("ParseDocumentType(%q) error = %v, want %v", tt.in, err, ErrUnsupportedType)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDocumentType(%q) unexpected error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseDocumentType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDetectDocumentType(t *testing.T) {
	tests := []struct {
		filename string
		want     DocumentType
		wantErr  bool
	}{
		{filename: "guide.md", want: DocumentTypeMarkdown},
		{filename: "notes.TXT", want: DocumentTypeMarkdown},
		{filename: "faq.json", want: DocumentTypeRecords},
		{filename: "conf/app.yml", want: DocumentTypeRecords},
		{filename: "image.png", wantErr: true},
		{filename: "README", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := DetectDocumentType(tt.filename)
			if tt.wantErr {
				if err == nil {
					t.Errorf("DetectDocumentType(%q) expected error", tt.filename)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("DetectDocumentType(%q) = %q, %v; want %q", tt.filename, got, err, tt.want)
			}
		})
	}
}

func TestStage_ProgressIsMonotonic(t *testing.T) {
	stages := []Stage{StageParsing, StageChunking, StageEmbedding, StageStoring, StageCompleted}
	for i := 1; i < len(stages); i++ {
		if stages[i].Progress() <= stages[i-1].Progress() {
			t.Errorf("%s progress %d not above %s progress %d",
				stages[i], stages[i].Progress(), stages[i-1], stages[i-1].Progress())
		}
		if stages[i].Order() <= stages[i-1].Order() {
			t.Errorf("%s order not above %s", stages[i], stages[i-1])
		}
	}
	if StageError.Progress() != 0 {
		t.Errorf("error stage progress = %d, want 0", StageError.Progress())
	}
	if StageCompleted.Progress() != 100 {
		t.Errorf("completed stage progress = %d, want 100", StageCompleted.Progress())
	}
}
