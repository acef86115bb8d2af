// Package llm asks an external language model for category suggestions.
// It supports OpenAI, Anthropic and Gemini providers, batches merchants into
// bounded requests, and tolerates partially malformed replies. A persistent
// Cache keyed by normalized merchant sits in front of every call.
package llm
