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

// Package pipeline implements the file indexing pipeline: the single
// per-file operation that resets, extracts,
// embeds, and persists one file's entities, relations, and pending
// references. It is a pure function of (file identity, bytes) plus
// the Store/embedding client it is handed — the Indexing Service
// (internal/indexing) owns sequencing and retries, not this package.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mrcis/mrcis/internal/embedding"
	"github.com/mrcis/mrcis/internal/entity"
	"github.com/mrcis/mrcis/internal/extract"
	"github.com/mrcis/mrcis/internal/metrics"
	"github.com/mrcis/mrcis/internal/store"
)

// Input is one file's identity plus its already-read bytes, mirroring
// extract.Input so the pipeline never re-reads a file the caller
// already loaded.
type Input struct {
	FileID       string
	RepositoryID string
	FilePath     string // repository-relative, POSIX-normalized
	Source       []byte
}

// Result is what the Indexing Service records against the IndexedFile
// row.
type Result struct {
	EntityCount int
	ParseErrors []extract.ParseError
}

// Pipeline runs the six-step per-file sequence against a Store and an
// embedding Client.
type Pipeline struct {
	store    *store.Store
	registry *extract.Registry
	embedder *embedding.Client
}

// New wires a Pipeline from its three collaborators. registry and
// embedder are shared across every file; store is the single State/
// Graph/Vector backend.
func New(st *store.Store, registry *extract.Registry, embedder *embedding.Client) *Pipeline {
	return &Pipeline{store: st, registry: registry, embedder: embedder}
}

// Run executes the six-step contract for one file: idempotent reset,
// extractor selection, extraction, embedding-text construction, batch
// embedding, and persistence. It never returns an error
// for parse errors or an unsupported file type — only for I/O,
// embedding, or persistence failures.
func (p *Pipeline) Run(ctx context.Context, in Input) (result *Result, err error) {
	started := time.Now()
	defer func() {
		if err == nil && result != nil {
			metrics.RecordFileIndexed(result.EntityCount, time.Since(started).Seconds())
		}
	}()

	// Step 1: idempotent reset. Vectors before entities, since vector
	// rows reference entity ids and upserting vectors for a file must be
	// preceded by deleting any prior vectors for that file.
	if _, err := p.store.DeleteVectorsForFile(ctx, in.FileID); err != nil {
		return nil, fmt.Errorf("reset vectors for file %s: %w", in.FileID, err)
	}
	if _, err := p.store.DeleteEntitiesForFile(ctx, in.FileID); err != nil {
		return nil, fmt.Errorf("reset entities for file %s: %w", in.FileID, err)
	}

	// Step 2: extractor selection.
	ex := p.registry.For(in.FilePath)
	if ex == nil {
		return &Result{}, nil
	}

	// Step 3: extract.
	res, err := ex.Extract(extract.Input{
		FilePath:     in.FilePath,
		FileID:       in.FileID,
		RepositoryID: in.RepositoryID,
		Source:       in.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", in.FilePath, err)
	}
	if len(res.Entities) == 0 {
		return &Result{ParseErrors: res.ParseErrors}, nil
	}

	// Step 4: build embedding texts, one per entity, same order as
	// res.Entities so step 6 can zip results back by index.
	texts := make([]string, len(res.Entities))
	for i, e := range res.Entities {
		texts[i] = embeddingText(e)
	}

	// Step 5: embed as one logical batch; the client slices into
	// provider-sized sub-batches internally.
	embedded := p.embedder.EmbedBatch(ctx, texts)

	// Step 6: persist. Assign vector ids, write entities (with
	// vector_id set), append vectors, then resolved relations and
	// pending references.
	vectors := make([]store.EntityVector, 0, len(res.Entities))
	for i, e := range res.Entities {
		hdr := e.Header()
		r := embedded[i]
		if r.Err != nil {
			return nil, fmt.Errorf("embed entity %s: %w", hdr.QualifiedName, r.Err)
		}
		hdr.VectorID = entity.NewID("vec", hdr.ID)
		vectors = append(vectors, store.EntityVector{
			VectorID:  hdr.VectorID,
			EntityID:  hdr.ID,
			Embedding: float64sFrom(r.Vector),
		})
	}

	if err := p.store.InsertEntities(ctx, res.Entities); err != nil {
		return nil, fmt.Errorf("insert entities for file %s: %w", in.FileID, err)
	}
	if _, err := p.store.UpsertVectors(ctx, vectors); err != nil {
		return nil, fmt.Errorf("upsert vectors for file %s: %w", in.FileID, err)
	}
	for i := range res.ResolvedRelations {
		if err := p.store.InsertRelation(ctx, &res.ResolvedRelations[i]); err != nil {
			return nil, fmt.Errorf("insert relation for file %s: %w", in.FileID, err)
		}
	}
	if len(res.PendingReferences) > 0 {
		refs := make([]*entity.PendingReference, len(res.PendingReferences))
		for i := range res.PendingReferences {
			refs[i] = &res.PendingReferences[i]
		}
		if err := p.store.InsertPendingReferences(ctx, refs); err != nil {
			return nil, fmt.Errorf("insert pending references for file %s: %w", in.FileID, err)
		}
	}

	return &Result{EntityCount: len(res.Entities), ParseErrors: res.ParseErrors}, nil
}

func float64sFrom(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// embeddingText builds the stable natural-language text an entity is
// embedded from. Blank fields are omitted entirely rather than
// emitted as empty labeled lines, so the same entity always produces
// byte-identical text.
func embeddingText(e entity.Entity) string {
	hdr := e.Header()
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s", hdr.EntityType, hdr.QualifiedName)
	if hdr.Signature != "" {
		fmt.Fprintf(&b, "\nsignature: %s", hdr.Signature)
	}
	if hdr.Docstring != "" {
		fmt.Fprintf(&b, "\n%s", hdr.Docstring)
	}
	if len(hdr.Decorators) > 0 {
		fmt.Fprintf(&b, "\ndecorators: %s", strings.Join(hdr.Decorators, ", "))
	}

	switch v := e.Variant().(type) {
	case *entity.Class:
		if len(v.BaseClasses) > 0 {
			fmt.Fprintf(&b, "\nbase_classes: %s", strings.Join(v.BaseClasses, ", "))
		}
	case *entity.Interface:
		if len(v.BaseClasses) > 0 {
			fmt.Fprintf(&b, "\nbase_classes: %s", strings.Join(v.BaseClasses, ", "))
		}
	case *entity.Function:
		if line := functionSignatureLine(v.Parameters, v.ReturnType); line != "" {
			fmt.Fprintf(&b, "\n%s", line)
		}
	case *entity.Import:
		if v.SourceModule != "" {
			fmt.Fprintf(&b, "\nsource_module: %s", v.SourceModule)
		}
	}

	return b.String()
}

func functionSignatureLine(params []entity.Parameter, returnType string) string {
	if len(params) == 0 && returnType == "" {
		return ""
	}
	names := make([]string, len(params))
	for i, p := range params {
		if p.Type != "" {
			names[i] = p.Name + ": " + p.Type
		} else {
			names[i] = p.Name
		}
	}
	line := "parameters: " + strings.Join(names, ", ")
	if returnType != "" {
		line += " -> " + returnType
	}
	return line
}
