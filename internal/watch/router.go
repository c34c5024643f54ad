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

// Package watch implements the File Event Router:
// it maps raw filesystem events to index_file calls or deletion
// handling, distinguishing an atomic-save rewrite from a real delete.
// github.com/fsnotify/fsnotify supplies the raw events; this package's
// Router is a pure mapping, independent of any particular watch
// library.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mrcis/mrcis/internal/discovery"
	"github.com/mrcis/mrcis/internal/store"
)

// EventKind is the closed set of filesystem event kinds the Router
// classifies raw watcher events into.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventDeleted  EventKind = "deleted"
)

// Indexer is the subset of internal/indexing.Service the Router drives
// on created/modified events (and atomic-save rewrites), kept as a
// narrow interface so this package never imports the Pipeline/queue
// machinery it doesn't need.
type Indexer interface {
	IndexFile(ctx context.Context, repositoryID, repoRoot, relPath string, force bool) (*store.EnqueueResult, error)
}

// Target is one watched repository: the Router resolves an incoming
// event's repository name to one of these before acting.
type Target struct {
	RepositoryID string
	Name         string
	RootPath     string
	IgnoreGlobs  []string
}

// Router maps filesystem events onto queue operations.
type Router struct {
	store   *store.Store
	indexer Indexer
	targets map[string]Target
	logger  *slog.Logger
}

// New builds a Router driving indexer for the given set of repository
// targets, keyed by repository name.
func New(st *store.Store, indexer Indexer, targets []Target, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]Target, len(targets))
	for _, t := range targets {
		byName[t.Name] = t
	}
	return &Router{store: st, indexer: indexer, targets: byName, logger: logger}
}

// Route handles one (kind, absolute path, repository
// name) event: unknown repositories drop the event; ignored paths drop
// the event; created/modified call IndexFile; deleted checks whether
// the path still exists — if so it's an atomic-save rewrite (call
// IndexFile), otherwise the file row (if any) is marked deleted and its
// graph/vector rows removed.
func (r *Router) Route(ctx context.Context, kind EventKind, absPath, repositoryName string) error {
	target, ok := r.targets[repositoryName]
	if !ok {
		r.logger.Debug("watch.route.unknown_repository", "repository", repositoryName, "path", absPath)
		return nil
	}

	relPath, err := filepath.Rel(target.RootPath, absPath)
	if err != nil {
		return fmt.Errorf("resolve relative path for %s: %w", absPath, err)
	}
	relPath = filepath.ToSlash(relPath)

	if discovery.MatchesAny(relPath, target.IgnoreGlobs) {
		return nil
	}

	switch kind {
	case EventCreated, EventModified:
		_, err := r.indexer.IndexFile(ctx, target.RepositoryID, target.RootPath, relPath, false)
		return err
	case EventDeleted:
		if _, statErr := os.Stat(absPath); statErr == nil {
			// Atomic-save editors often unlink-then-recreate; fsnotify
			// reports that as a delete even though the file is back by
			// the time we observe it.
			_, err := r.indexer.IndexFile(ctx, target.RepositoryID, target.RootPath, relPath, false)
			return err
		} else if !errors.Is(statErr, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", absPath, statErr)
		}
		return r.handleRealDelete(ctx, target, relPath)
	default:
		return nil
	}
}

func (r *Router) handleRealDelete(ctx context.Context, target Target, relPath string) error {
	file, err := r.store.GetFileByPath(ctx, target.RepositoryID, relPath)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("look up deleted file %s: %w", relPath, err)
	}

	if _, err := r.store.DeleteVectorsForFile(ctx, file.ID); err != nil {
		return fmt.Errorf("delete vectors for %s: %w", relPath, err)
	}
	if _, err := r.store.DeleteEntitiesForFile(ctx, file.ID); err != nil {
		return fmt.Errorf("delete entities for %s: %w", relPath, err)
	}
	if err := r.store.UpdateFileStatus(ctx, file.ID, store.FileDeleted, ""); err != nil {
		return fmt.Errorf("mark file deleted %s: %w", relPath, err)
	}
	return r.store.RecomputeRepositoryStats(ctx, target.RepositoryID)
}
