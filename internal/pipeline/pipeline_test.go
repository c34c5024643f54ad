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

package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcis/mrcis/internal/embedding"
	"github.com/mrcis/mrcis/internal/entity"
	"github.com/mrcis/mrcis/internal/extract"
	"github.com/mrcis/mrcis/internal/store"
	mrcistesting "github.com/mrcis/mrcis/internal/testing"
)

const goSource = `package greeter

// Greet returns a greeting for name.
func Greet(name string) string {
	return "hello " + name
}
`

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store) {
	t.Helper()
	backend := mrcistesting.SetupTestBackend(t)
	st := store.New(backend)
	client := embedding.NewClient(&embedding.MockProvider{Dimensions: 8}, 4, embedding.DefaultRetryConfig())
	return New(st, extract.NewRegistry(), client), st
}

func TestPipelineRunIndexesEntitiesAndVectors(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	in := Input{
		FileID:       "file_1",
		RepositoryID: "repo_1",
		FilePath:     "greeter.go",
		Source:       []byte(goSource),
	}

	res, err := p.Run(ctx, in)
	require.NoError(t, err)
	assert.Empty(t, res.ParseErrors)
	assert.GreaterOrEqual(t, res.EntityCount, 1)

	entities, err := st.GetEntitiesForFile(ctx, in.FileID)
	require.NoError(t, err)
	assert.Len(t, entities, res.EntityCount)

	var found bool
	for _, e := range entities {
		hdr := e.Header()
		if hdr.EntityType == entity.TypeFunction && hdr.Name == "Greet" {
			found = true
			assert.NotEmpty(t, hdr.VectorID)
		}
	}
	assert.True(t, found, "expected a Greet function entity")
}

func TestPipelineRunIsIdempotent(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	in := Input{
		FileID:       "file_1",
		RepositoryID: "repo_1",
		FilePath:     "greeter.go",
		Source:       []byte(goSource),
	}

	first, err := p.Run(ctx, in)
	require.NoError(t, err)

	second, err := p.Run(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.EntityCount, second.EntityCount)

	entities, err := st.GetEntitiesForFile(ctx, in.FileID)
	require.NoError(t, err)
	assert.Len(t, entities, second.EntityCount, "reset step must prevent duplicate rows across re-runs")
}

func TestPipelineRunUnsupportedExtensionReturnsZeroEntities(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	res, err := p.Run(ctx, Input{
		FileID:       "file_2",
		RepositoryID: "repo_1",
		FilePath:     "README.unknownext",
		Source:       []byte("whatever"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.EntityCount)
}

func TestEmbeddingTextIsStableForSameEntity(t *testing.T) {
	fn := &entity.Function{
		Hdr: entity.Header{
			EntityType:    entity.TypeFunction,
			QualifiedName: "greeter.Greet",
			Signature:     "func Greet(name string) string",
			Docstring:     "Greet returns a greeting for name.",
		},
		Parameters: []entity.Parameter{{Name: "name", Type: "string"}},
		ReturnType: "string",
	}

	a := embeddingText(fn)
	b := embeddingText(fn)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "greeter.Greet")
	assert.Contains(t, a, "parameters: name: string -> string")
}
