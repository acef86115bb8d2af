package llm

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClientDisabled is returned when no provider is configured.
	ErrClientDisabled = errors.New("advisory client disabled")
	// ErrMalformedResponse is returned when a reply lacks the expected shape.
	ErrMalformedResponse = errors.New("malformed advisory response")
)

// Provider sends a single completion request to a model backend.
type Provider interface {
	// Complete returns the model's raw text reply.
	Complete(ctx context.Context, system, prompt string) (string, error)
	// Model names the backing model, recorded alongside cached results.
	Model() string
}

// Config holds configuration for the advisory client.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	MaxRetries  int
	RetryDelay  time.Duration
	RateLimit   int
	Temperature *float64
	MaxTokens   int
	BatchSize   int
}

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 2048
	defaultBatchSize   = 6
	defaultHTTPTimeout = 60 * time.Second
)

// temperature falls back to the default only when unset; zero is valid.
func (c Config) temperature() float64 {
	if c.Temperature == nil {
		return defaultTemperature
	}
	return *c.Temperature
}

func (c Config) maxTokens() int {
	if c.MaxTokens <= 0 {
		return defaultMaxTokens
	}
	return c.MaxTokens
}

func (c Config) batchSize() int {
	if c.BatchSize <= 0 {
		return defaultBatchSize
	}
	return c.BatchSize
}
