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
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidDocument indicates a SourceDocument failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrEmptyContent indicates the document content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrMissingDocumentID indicates the document identifier is empty.
	ErrMissingDocumentID = errors.New("document id cannot be empty")

	// ErrUnsupportedType indicates an unknown document type.
	ErrUnsupportedType = errors.New("unsupported document type")

	// ErrCircuitOpen is matched by every circuit-open rejection.
	ErrCircuitOpen = errors.New("circuit open")
)

// ErrorKind discriminates the variants of Error.
type ErrorKind int

const (
	// KindValidation is malformed input. Never recoverable.
	KindValidation ErrorKind = iota + 1
	// KindProcessing is a stage-specific failure.
	KindProcessing
	// KindEmbedding is a failed call to the embedding service.
	KindEmbedding
	// KindStore is a failed call to the chunk store.
	KindStore
	// KindCircuitOpen is a fail-fast rejection by a circuit breaker.
	KindCircuitOpen
)

// String returns the name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindProcessing:
		return "processing"
	case KindEmbedding:
		return "embedding"
	case KindStore:
		return "store"
	case KindCircuitOpen:
		return "circuit_open"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Machine-readable error codes.
const (
	CodeEmptyContent        = "EMPTY_CONTENT"
	CodeMissingDocumentID   = "MISSING_DOCUMENT_ID"
	CodeUnsupportedType     = "UNSUPPORTED_TYPE"
	CodeInvalidRecords      = "INVALID_RECORDS"
	CodeInvalidConfig       = "INVALID_CONFIG"
	CodeChunkingFailed      = "CHUNKING_FAILED"
	CodeNoChunks            = "NO_CHUNKS"
	CodeEmbeddingFailed     = "EMBEDDING_FAILED"
	CodeEmptyEmbedding      = "EMPTY_EMBEDDING"
	CodeInvalidEmbedding    = "INVALID_EMBEDDING"
	CodeEmbeddingMismatch   = "EMBEDDING_COUNT_MISMATCH"
	CodeStoreFailed         = "STORE_FAILED"
	CodeSerializationFailed = "SERIALIZATION_FAILED"
	CodeCircuitOpen         = "CIRCUIT_OPEN"
	CodeCancelled           = "CANCELLED"
)

// Error is the single error type raised by the ingestion core.
// Kind selects the variant; the remaining fields are shared by every variant.
type Error struct {
	Kind        ErrorKind
	Code        string
	Stage       Stage
	DocumentID  string
	Recoverable bool
	Retries     int           // attempts made, set on embedding errors
	RetryAfter  time.Duration // remaining open time, set on circuit-open errors
	Message     string
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Code != "" {
		b.WriteString(" [")
		b.WriteString(e.Code)
		b.WriteString("]")
	}
	if e.Stage != "" {
		b.WriteString(" stage=")
		b.WriteString(string(e.Stage))
	}
	if e.DocumentID != "" {
		b.WriteString(" doc=")
		b.WriteString(e.DocumentID)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrCircuitOpen) match circuit-open rejections.
func (e *Error) Is(target error) bool {
	return target == ErrCircuitOpen && e.Kind == KindCircuitOpen
}

// WithDocument returns a copy of e annotated with a document id and stage.
// Fields that are already set are kept.
func (e *Error) WithDocument(documentID string, stage Stage) *Error {
	cp := *e
	if cp.DocumentID == "" {
		cp.DocumentID = documentID
	}
	if cp.Stage == "" {
		cp.Stage = stage
	}
	return &cp
}

// NewValidationError reports malformed input.
func NewValidationError(code, message string, err error) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Err: err}
}

// NewProcessingError reports a failure inside a pipeline stage.
func NewProcessingError(stage Stage, code string, recoverable bool, err error) *Error {
	return &Error{Kind: KindProcessing, Code: code, Stage: stage, Recoverable: recoverable, Err: err}
}

// NewEmbeddingError reports a failed embedding call after retries attempts.
func NewEmbeddingError(retries int, err error) *Error {
	return &Error{
		Kind:        KindEmbedding,
		Code:        CodeEmbeddingFailed,
		Stage:       StageEmbedding,
		Recoverable: true,
		Retries:     retries,
		Err:         err,
	}
}

// NewStoreError reports a failed chunk store operation.
func NewStoreError(op string, err error) *Error {
	return &Error{
		Kind:        KindStore,
		Code:        CodeStoreFailed,
		Recoverable: true,
		Message:     op,
		Err:         err,
	}
}

// NewCircuitOpenError reports a call rejected by the named breaker.
func NewCircuitOpenError(name string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindCircuitOpen,
		Code:       CodeCircuitOpen,
		RetryAfter: retryAfter,
		Message:    fmt.Sprintf("circuit %q is open, retry after %v", name, retryAfter.Round(time.Millisecond)),
	}
}

// IsRecoverable reports whether err is worth retrying.
// Context cancellation is never recoverable. Errors that are not *Error are
// treated as transient transport failures.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindValidation, KindCircuitOpen:
			return false
		case KindEmbedding, KindStore:
			return true
		case KindProcessing:
			return e.Recoverable
		}
		return e.Recoverable
	}
	return true
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
