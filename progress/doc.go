// Package progress reports the stage and progress of ingestion jobs.
//
// Reporters are best-effort collaborators: the pipeline logs and swallows
// their errors. Implementations write a terminal status line, log through
// slog, fan out to several reporters, or do nothing.
package progress
