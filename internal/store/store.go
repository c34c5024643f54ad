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

// Package store implements the domain-shaped CRUD and query operations
// the rest of mrcis runs against — Repository, IndexedFile, QueueEntry,
// CodeEntity, Relation, PendingReference, and the vector ANN search —
// on top of pkg/storage.Backend's plain Datalog transport.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mrcis/mrcis/pkg/storage"
)

// Store is the single entry point every other component uses to read
// and write State/Graph/Vector Store state. It owns no connection of
// its own — it talks through storage.Backend, keeping the backend
// swappable (local CozoDB today, a remote engine tomorrow).
type Store struct {
	backend storage.Backend

	// seqMu serializes queue_entry.seq assignment so concurrent
	// enqueues never race on the monotonic counter.
	seqMu sync.Mutex

	// pendingSeqMu serializes pending_reference.created_seq assignment,
	// the resolver's FIFO ordering key.
	pendingSeqMu sync.Mutex
}

// New wraps a storage.Backend with the domain operations below.
func New(backend storage.Backend) *Store {
	return &Store{backend: backend}
}

// Backend returns the underlying storage.Backend for callers that need
// to run a bespoke Datalog query outside this package's API (pkg/tools
// does this for read-only search queries).
func (s *Store) Backend() storage.Backend {
	return s.backend
}

// now returns a unix-epoch float timestamp, the representation chosen
// for the CozoDB schema's *_at columns.
func now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// ErrNotFound is returned by Get-style lookups that find nothing. It is
// deliberately a sentinel rather than a nil-nil return so that callers
// who forget to check can't silently treat a missing row as success.
var ErrNotFound = fmt.Errorf("store: not found")

func scalarStr(row []any, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	s, _ := row[i].(string)
	return s
}

func scalarInt(row []any, i int) int {
	if i >= len(row) {
		return 0
	}
	switch v := row[i].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func scalarFloat(row []any, i int) float64 {
	if i >= len(row) {
		return 0
	}
	switch v := row[i].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func scalarBool(row []any, i int) bool {
	if i >= len(row) {
		return false
	}
	b, _ := row[i].(bool)
	return b
}

// withTimeout applies a default query budget when the caller passes a
// context with no deadline.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 10*time.Second)
}
