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

// Package embedding implements the embedding client: batched
// text-to-vector HTTP calls against an OpenAI-compatible
// embeddings endpoint, with classified retry and jittered backoff.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// Provider generates an embedding vector for a single text, normalized
// to unit length.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HTTPProvider calls an OpenAI-compatible /embeddings endpoint. Any
// OpenAI-wire-compatible server works: OpenAI itself, vLLM, Ollama's
// OpenAI shim, text-embeddings-inference, etc.
type HTTPProvider struct {
	apiKey         string
	baseURL        string
	model          string
	appendEOSToken bool
	eosToken       string
	httpClient     *http.Client
}

// NewHTTPProvider builds a Provider from the Embedding config section
// (internal/config.Embedding).
func NewHTTPProvider(baseURL, apiKey, model string, timeout time.Duration, appendEOSToken bool, eosToken string) *HTTPProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPProvider{
		apiKey:         apiKey,
		baseURL:        baseURL,
		model:          model,
		appendEOSToken: appendEOSToken,
		eosToken:       eosToken,
		httpClient:     &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Input          string `json:"input"`
	Model          string `json:"model"`
	EncodingFormat string `json:"encoding_format,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

type embedErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embed generates one embedding vector for text.
// Some embedding models (nomic-embed-text among them) expect an
// end-of-sequence marker appended to the raw text; AppendEOSToken wires
// that without baking a single model's quirk into the request shape.
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.appendEOSToken && p.eosToken != "" {
		text += p.eosToken
	}

	reqBody := embedRequest{Input: text, Model: p.model, EncodingFormat: "float"}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp embedErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("embedding api error (status %d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("embedding api error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding api returned empty embedding")
	}

	vec := make([]float32, len(parsed.Data[0].Embedding))
	for i, v := range parsed.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return normalize(vec), nil
}

// normalize rescales v to unit L2 norm. Most providers normalize
// server-side; this covers the ones that don't.
func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sumSquares))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}
