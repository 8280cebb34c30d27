// Package chunking splits source documents into bounded text chunks.
//
// Two strategies are provided:
//
//   - MarkdownChunker: header-bounded sections with repeated headers and
//     word overlap, falling back to sentence-aware size windows.
//   - RecordChunker: schema-aware chunking of JSON or YAML record
//     collections, grouping FAQ items by category or grouping key.
//
// Chunking is a pure function of input text and Config. The same input
// always yields the same chunk sequence with the same IDs.
package chunking
