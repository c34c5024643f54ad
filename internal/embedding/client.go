// Copyright 2025 KrakLabs
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
//
// SPDX-License-Identifier: Apache-2.0

package embedding

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/mrcis/mrcis/internal/metrics"
)

// RetryConfig tunes the classified-retry/jittered-backoff policy for
// embedding calls.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryConfig returns the retry policy used when none is given.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
	}
}

// Client is the Embedding Client: it submits one logical batch of texts and slices it
// into provider-batch-sized sub-batches, retrying each individual call
// with classified backoff.
type Client struct {
	provider  Provider
	batchSize int
	retry     RetryConfig
}

// NewClient wraps a Provider with the batching/retry policy. batchSize
// is the provider's own per-request limit (internal/config.Embedding.BatchSize);
// callers may submit logical batches of any size.
func NewClient(provider Provider, batchSize int, retry RetryConfig) *Client {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Client{provider: provider, batchSize: batchSize, retry: retry}
}

// EmbedResult pairs a text's position with its vector, so a failed
// sub-batch never misaligns the rest.
type EmbedResult struct {
	Vector []float32
	Err    error
}

// EmbedBatch embeds every text in texts, slicing into provider-batch-sized
// sub-batches internally. The returned slice has
// exactly len(texts) entries in the same order; a sub-batch failure only
// fails the texts it covers, not the whole call, matching the pipeline's
// expectation that it can still persist the entities whose embedding
// succeeded.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) []EmbedResult {
	out := make([]EmbedResult, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		for i := start; i < end; i++ {
			vec, err := c.embedWithRetry(ctx, texts[i])
			out[i] = EmbedResult{Vector: vec, Err: err}
		}
	}
	return out
}

// embedWithRetry embeds one text with classified retry (network/
// timeout/5xx/429 are retryable) and full-jitter exponential backoff.
func (c *Client) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	retry := c.retry
	if retry.MaxRetries <= 0 {
		retry = DefaultRetryConfig()
	}

	var vec []float32
	var err error
	for attempt := 0; attempt < retry.MaxRetries; attempt++ {
		vec, err = c.provider.Embed(ctx, text)
		if err == nil {
			metrics.RecordEmbedding()
			return vec, nil
		}
		if !isRetryable(err) || attempt == retry.MaxRetries-1 {
			break
		}
		metrics.RecordEmbeddingRetry()
		sleep := backoffWithJitter(retry.InitialBackoff, attempt, retry.Multiplier, retry.MaxBackoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	metrics.RecordEmbeddingError()
	return nil, err
}

// isRetryable classifies provider errors by message content
// (network/timeout and HTTP 5xx/429).
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"timeout", "temporarily unavailable", "connection refused", "connection reset", "deadline exceeded", "eof", " 429", " 500", " 502", " 503", " 504"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

var jitterMu sync.Mutex

// backoffWithJitter is full-jitter exponential backoff.
func backoffWithJitter(base time.Duration, attempt int, mult float64, cap time.Duration) time.Duration {
	exp := float64(base)
	for i := 0; i < attempt; i++ {
		exp *= mult
	}
	d := time.Duration(exp)
	if d > cap {
		d = cap
	}
	if d <= 0 {
		return base
	}
	jitterMu.Lock()
	defer jitterMu.Unlock()
	return time.Duration(rand.Int63n(int64(d) + 1))
}

// MockProvider returns deterministic hash-derived vectors, for tests and
// for the pipeline's mock embedding mode.
type MockProvider struct {
	Dimensions int
}

// Embed implements Provider with a deterministic, text-hash-derived,
// unit-normalized vector.
func (m *MockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	dims := m.Dimensions
	if dims <= 0 {
		dims = 8
	}
	var hash uint64 = 5381
	for _, c := range text {
		hash = ((hash << 5) + hash) + uint64(c)
	}
	vec := make([]float32, dims)
	for i := range vec {
		val := float32((hash+uint64(i)*7919)%10000) / 10000.0
		vec[i] = val*2.0 - 1.0
	}
	return normalize(vec), nil
}
