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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientEmbedBatchPreservesOrder(t *testing.T) {
	client := NewClient(&MockProvider{Dimensions: 4}, 2, DefaultRetryConfig())
	texts := []string{"alpha", "beta", "gamma", "delta", "epsilon"}

	results := client.EmbedBatch(context.Background(), texts)
	require.Len(t, results, len(texts))
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Len(t, r.Vector, 4)
		// Deterministic: re-embedding the same text yields the same vector.
		again, err := (&MockProvider{Dimensions: 4}).Embed(context.Background(), texts[i])
		require.NoError(t, err)
		assert.Equal(t, again, r.Vector)
	}
}

type flakyProvider struct {
	failures int
	calls    int
	errMsg   string // defaults to a retryable network error
}

func (f *flakyProvider) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		if f.errMsg != "" {
			return nil, errors.New(f.errMsg)
		}
		return nil, errors.New("connection reset by peer")
	}
	return []float32{1, 0, 0}, nil
}

func TestClientRetriesRetryableErrors(t *testing.T) {
	provider := &flakyProvider{failures: 2}
	client := NewClient(provider, 8, RetryConfig{MaxRetries: 3, InitialBackoff: 0, MaxBackoff: 0, Multiplier: 2})

	results := client.EmbedBatch(context.Background(), []string{"text"})
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 3, provider.calls)
}

func TestClientGivesUpOnNonRetryableError(t *testing.T) {
	provider := &flakyProvider{failures: 99, errMsg: "invalid input: model not found"}
	client := NewClient(provider, 8, DefaultRetryConfig())

	// A non-retryable message (no recognized substring) should stop at
	// the first attempt rather than burning the whole retry budget.
	results := client.EmbedBatch(context.Background(), []string{"text"})
	assert.Error(t, results[0].Err)
	assert.Equal(t, 1, provider.calls)
}

func TestMockProviderNormalizesToUnitLength(t *testing.T) {
	vec, err := (&MockProvider{Dimensions: 16}).Embed(context.Background(), "hello world")
	require.NoError(t, err)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sumSquares, 0.01)
}
