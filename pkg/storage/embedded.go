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

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	cozo "github.com/mrcis/mrcis/pkg/cozodb"
)

// EmbeddedBackend implements Backend using a local CozoDB instance. This is
// mrcis's only backend: the single embedded engine plays the State Store,
// Graph Store, and Vector Store roles at once — the graph is a
// materialized view over the same relations, and the vector index is an
// HNSW index on entity_vector.
type EmbeddedBackend struct {
	db     *cozo.CozoDB
	mu     sync.RWMutex
	closed bool
}

// EmbeddedConfig configures the embedded backend.
type EmbeddedConfig struct {
	// DataDir is the directory where CozoDB stores its data. Defaults to
	// ~/.mrcis/data/<project_id>.
	DataDir string

	// Engine is the CozoDB storage engine: "rocksdb", "sqlite", or "mem".
	Engine string

	// ProjectID namespaces the default data directory.
	ProjectID string

	// EmbeddingDimensions sizes the HNSW vector index created by
	// CreateHNSWIndex; must match the configured embedding model.
	EmbeddingDimensions int
}

// NewEmbeddedBackend creates a new embedded CozoDB backend.
func NewEmbeddedBackend(config EmbeddedConfig) (*EmbeddedBackend, error) {
	if config.Engine == "" {
		config.Engine = "rocksdb"
	}
	if config.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		config.DataDir = filepath.Join(homeDir, ".mrcis", "data")
		if config.ProjectID != "" {
			config.DataDir = filepath.Join(config.DataDir, config.ProjectID)
		}
	}

	if config.Engine != "mem" {
		if err := os.MkdirAll(config.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := cozo.New(config.Engine, config.DataDir, nil)
	if err != nil {
		return nil, fmt.Errorf("open cozodb: %w", err)
	}

	return &EmbeddedBackend{db: &db}, nil
}

// Query executes a read-only Datalog query.
func (b *EmbeddedBackend) Query(ctx context.Context, datalog string, params map[string]any) (*QueryResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("backend is closed")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := b.db.RunReadOnly(datalog, params)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return FromNamedRows(result), nil
}

// Execute runs a Datalog mutation.
func (b *EmbeddedBackend) Execute(ctx context.Context, datalog string, params map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("backend is closed")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	_, err := b.db.Run(datalog, params)
	if err != nil {
		return fmt.Errorf("execute failed: %w", err)
	}
	return nil
}

// Close closes the database connection. Safe to call more than once.
func (b *EmbeddedBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.db.Close()
	return nil
}

// DB returns the underlying CozoDB instance for advanced operations (schema
// migrations, backup/restore). Prefer the Backend interface elsewhere.
func (b *EmbeddedBackend) DB() *cozo.CozoDB {
	return b.db
}

// schemaRelations are the mrcis relations, one `:create`
// per table. Kept as individual statements, not one multi-relation script,
// so EnsureSchema can tolerate "already exists" on repeated calls.
var schemaRelations = []string{
	`:create repository {
		id: String
		=>
		name: String,
		root_path: String,
		status: String,
		file_count: Int default 0,
		entity_count: Int default 0,
		relation_count: Int default 0,
		last_indexed_at: Float default 0.0,
		last_indexed_commit: String default "",
		error_message: String default ""
	}`,
	`:create indexed_file {
		id: String
		=>
		repository_id: String,
		path: String,
		checksum: String,
		file_size: Int default 0,
		language: String default "",
		status: String,
		failure_count: Int default 0,
		error_message: String default "",
		entity_count: Int default 0,
		last_modified_at: Float default 0.0,
		last_indexed_at: Float default 0.0
	}`,
	`:create queue_entry {
		file_id: String
		=>
		repository_id: String,
		priority: Int default 0,
		queued_at: Float,
		seq: Int
	}`,
	`:create code_entity {
		id: String
		=>
		repository_id: String,
		file_id: String,
		entity_type: String,
		name: String,
		qualified_name: String,
		language: String,
		line_start: Int default 0,
		line_end: Int default 0,
		col_start: Int default -1,
		col_end: Int default -1,
		signature: String default "",
		docstring: String default "",
		source_text: String default "",
		visibility: String default "public",
		is_exported: Bool default true,
		decorators: String default "",
		vector_id: String default "",
		variant_json: String default "{}"
	}`,
	`:create relation {
		id: String
		=>
		source_id: String,
		target_id: String,
		relation_type: String,
		is_cross_repository: Bool default false,
		line_number: Int default -1,
		context_snippet: String default "",
		weight: Float default 1.0
	}`,
	`:create pending_reference {
		id: String
		=>
		source_entity_id: String,
		source_qualified_name: String,
		source_repository_id: String,
		target_qualified_name: String,
		relation_type: String,
		status: String default "pending",
		attempts: Int default 0,
		resolved_target_id: String default "",
		line_number: Int default -1,
		context_snippet: String default "",
		receiver_expr: String default "",
		created_seq: Int
	}`,
	`:create entity_vector {
		vector_id: String
		=>
		entity_id: String,
		embedding: <F32; Any>
	}`,
}

// schemaIndexes are the secondary indexes created at startup (unique
// entity id is the relation's own key; qualified name, simple name, and
// file id get secondary indexes here).
var schemaIndexes = []string{
	`::index create indexed_file:by_repo_path { repository_id, path }`,
	`::index create code_entity:by_qualified_name { qualified_name }`,
	`::index create code_entity:by_name { name }`,
	`::index create code_entity:by_file { file_id }`,
	`::index create relation:by_source { source_id }`,
	`::index create relation:by_target { target_id }`,
	`::index create pending_reference:by_status { status, created_seq }`,
	`::index create pending_reference:by_source { source_entity_id }`,
}

// EnsureSchema creates the mrcis relations if they don't already exist.
// Idempotent and safe to call on every startup.
func (b *EmbeddedBackend) EnsureSchema() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, stmt := range schemaRelations {
		if _, err := b.db.Run(stmt, nil); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("create schema relation: %w", err)
		}
	}
	for _, stmt := range schemaIndexes {
		if _, err := b.db.Run(stmt, nil); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("create schema index: %w", err)
		}
	}
	return nil
}

// CreateHNSWIndex creates the HNSW vector index on entity_vector, sized to
// dimensions. Safe to call repeatedly.
func (b *EmbeddedBackend) CreateHNSWIndex(dimensions int) error {
	if dimensions <= 0 {
		dimensions = 768
	}
	stmt := fmt.Sprintf(
		`::hnsw create entity_vector:ann_idx { dim: %d, m: 16, ef_construction: 200, fields: [embedding], distance: Cosine }`,
		dimensions,
	)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.db.Run(stmt, nil); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("create hnsw index: %w", err)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}
