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

// Package storage: usage notes for the embedded backend.
//
// # Quick Start
//
// Create an embedded backend and initialize its schema:
//
//	backend, err := storage.NewEmbeddedBackend(storage.EmbeddedConfig{
//	    DataDir:             "/path/to/data",
//	    Engine:              "rocksdb",
//	    ProjectID:           "myproject",
//	    EmbeddingDimensions: 768,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	if err := backend.EnsureSchema(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := backend.CreateHNSWIndex(768); err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := backend.Query(ctx, `
//	    ?[name, qualified_name] := *code_entity{name, qualified_name}
//	    :limit 10
//	`, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, row := range result.Rows {
//	    fmt.Printf("%s (%s)\n", row[0], row[1])
//	}
//
// # Schema
//
// EnsureSchema creates seven relations: repository, indexed_file,
// queue_entry, code_entity, relation, pending_reference, and entity_vector.
// CreateHNSWIndex adds the ann_idx HNSW index over entity_vector, sized to
// the configured embedding dimensions.
//
// # Query vs Execute
//
// Use Query for read operations and Execute for mutations:
//
//	result, err := backend.Query(ctx, `?[count(e)] := *code_entity{id: e}`, nil)
//	err := backend.Execute(ctx, `:rm code_entity { id: "ent123" }`, nil)
//
// # Configuration
//
// EmbeddedConfig controls the backend behavior; unset DataDir defaults to
// ~/.mrcis/data/<project_id> and unset Engine defaults to "rocksdb".
//
// # Thread Safety
//
// EmbeddedBackend is safe for concurrent use. Read operations use a read
// lock while write operations use an exclusive lock, allowing concurrent
// reads but exclusive writes.
//
// # Direct Database Access
//
// For advanced operations, access the underlying CozoDB instance:
//
//	db := backend.DB()
//	result, err := db.Run(`::relations`, nil)
//
// Use with caution - prefer the Backend interface methods for normal operations.
package storage
