// Package resilience guards calls to unreliable dependencies.
//
// RetryPolicy retries recoverable failures with capped exponential backoff.
// CircuitBreaker stops calling a dependency after consecutive failures and
// tries it again with a single trial call once a cooldown has elapsed.
//
// Both consult core.IsRecoverable semantics: validation errors and
// circuit-open rejections are never retried.
package resilience
