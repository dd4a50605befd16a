// Package llm provides an OpenRouter chat client that returns JSON payloads.
//
// The story pipeline uses it to write chapter text from a prompt and an
// optional drawing. Requests ask for a JSON object response; DecodeLLMJSON
// tolerates models that wrap the object in code fences or prose.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty completions and network
// timeouts with exponential backoff (base 1s, max 10s, up to 3 attempts by
// default). Retry-After is honoured. Context cancellation aborts retries
// immediately.
package llm
