package core

import (
	"errors"
	"testing"
)

func TestValidateSourceDocument(t *testing.T) {
	tests := []struct {
		name     string
		doc      *SourceDocument
		wantErr  error
		wantCode string
	}{
		{
			name: "valid markdown",
			doc: &SourceDocument{
				ID:       "doc-1",
				Filename: "guide.md",
				Type:     DocumentTypeMarkdown,
				Content:  "# Title\n\nBody",
			},
		},
		{
			name: "valid records without filename",
			doc: &SourceDocument{
				ID:      "doc-2",
				Type:    DocumentTypeRecords,
				Content: `[{"question":"q","answer":"a"}]`,
			},
		},
		{
			name:     "nil document",
			doc:      nil,
			wantErr:  ErrInvalidDocument,
			wantCode: CodeEmptyContent,
		},
		{
			name: "blank id",
			doc: &SourceDocument{
				ID:      "   ",
				Type:    DocumentTypeMarkdown,
				Content: "text",
			},
			wantErr:  ErrMissingDocumentID,
			wantCode: CodeMissingDocumentID,
		},
		{
			name: "empty content",
			doc: &SourceDocument{
				ID:   "doc-3",
				Type: DocumentTypeMarkdown,
			},
			wantErr:  ErrEmptyContent,
			wantCode: CodeEmptyContent,
		},
		{
			name: "whitespace content",
			doc: &SourceDocument{
				ID:      "doc-4",
				Type:    DocumentTypeMarkdown,
				Content: " \n\t ",
			},
			wantErr:  ErrEmptyContent,
			wantCode: CodeEmptyContent,
		},
		{
			name: "unknown type",
			doc: &SourceDocument{
				ID:      "doc-5",
				Type:    DocumentType("pdf"),
				Content: "text",
			},
			wantErr:  ErrUnsupportedType,
			wantCode: CodeUnsupportedType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSourceDocument(tt.doc)

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateSourceDocument() unexpected error = %v", err)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSourceDocument() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("ValidateSourceDocument() error = %v, want it to match ErrInvalidDocument", err)
			}
			if got := KindOf(err); got != KindValidation {
				t.Errorf("KindOf() = %v, want %v", got, KindValidation)
			}
			if got := CodeOf(err); got != tt.wantCode {
				t.Errorf("CodeOf() = %q, want %q", got, tt.wantCode)
			}
			if IsRecoverable(err) {
				t.Errorf("validation errors must not be recoverable")
			}
		})
	}
}

func TestValidateDocumentType(t *testing.T) {
	if err := ValidateDocumentType(DocumentTypeMarkdown); err != nil {
		t.Errorf("markdown: unexpected error %v", err)
	}
	if err := ValidateDocumentType(DocumentTypeRecords); err != nil {
		t.Errorf("records: unexpected error %v", err)
	}
	if err := ValidateDocumentType(""); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("empty type: error = %v, want %v", err, ErrUnsupportedType)
	}
}
