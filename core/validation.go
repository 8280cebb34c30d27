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


package core

import (
	"fmt"
	"strings"
)

// ValidateSourceDocument validates a SourceDocument before ingestion.
//
// Validation rules:
//   - ID must not be blank
//   - Content must not be blank
//   - Type must be markdown or record-collection
//
// NOT validated:
//   - Filename (informational only)
//   - Content syntax (checked by the chunker for the declared type)
//
// Every failure is a *Error of KindValidation that also matches
// ErrInvalidDocument.
func ValidateSourceDocument(doc *SourceDocument) error {
	if doc == nil {
		return NewValidationError(CodeEmptyContent, "document is nil", ErrInvalidDocument)
	}

	if strings.TrimSpace(doc.ID) == "" {
		return NewValidationError(CodeMissingDocumentID, "",
			fmt.Errorf("%w: %w", ErrInvalidDocument, ErrMissingDocumentID)).WithDocument("", StageParsing)
	}

	if strings.TrimSpace(doc.Content) == "" {
		return NewValidationError(CodeEmptyContent, "",
			fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)).WithDocument(doc.ID, StageParsing)
	}

	if err := ValidateDocumentType(doc.Type); err != nil {
		return NewValidationError(CodeUnsupportedType, fmt.Sprintf("type %q", doc.Type),
			fmt.Errorf("%w: %w", ErrInvalidDocument, err)).WithDocument(doc.ID, StageParsing)
	}

	return nil
}

// ValidateDocumentType validates that a DocumentType has a known value.
func ValidateDocumentType(t DocumentType) error {
	if t != DocumentTypeMarkdown && t != DocumentTypeRecords {
		return ErrUnsupportedType
	}
	return nil
}
