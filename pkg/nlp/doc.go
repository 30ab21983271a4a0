// Package nlp provides the inference backends used to judge answers.
//
// A Backend is one addressable endpoint. Three wire protocols are supported,
// selected by Kind:
//   - ollama: the native Ollama /api/generate protocol
//   - openai: OpenAI chat completions, including vLLM and Ollama's /v1 API
//   - gemini: Google Gemini through the Generative AI SDK
//
// NewBackend is the only place a kind string is interpreted; the rest of the
// module works against the Backend interface.
//
// # Pool
//
// Pool spreads requests over its backends in round-robin order using an
// atomic cursor, so N consecutive calls visit each of N backends once.
// A call stays on the backend it was given: failed attempts are retried on
// the same endpoint with a fixed delay and a per-attempt timeout.
//
//	pool, err := nlp.NewPool(backends,
//		nlp.WithRetry(nlp.DefaultRetryConfig()),
//		nlp.WithLogger(logger))
//	gen, err := pool.Generate(ctx, prompt)
//
// # Wrappers
//
//   - CircuitBreakerBackend: stops calling a failing endpoint for a while
//     and raises an alert when it trips
//   - ParquetCallTracker: writes one CallRecord per Generate to parquet
//
// # Error Handling
//
// A call that fails on every attempt returns *BackendCallError. Its Kind
// (timeout, transport, status, empty_response, circuit_open, canceled) is
// informational; it never changes the retry policy.
package nlp
