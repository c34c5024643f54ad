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

// Package runtime boots every component in dependency order, acquires
// or fails to acquire the instance lock, and runs
// either the full writer task set or a read-only lock-watch loop.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mrcis/mrcis/internal/config"
	"github.com/mrcis/mrcis/internal/discovery"
	"github.com/mrcis/mrcis/internal/embedding"
	"github.com/mrcis/mrcis/internal/entity"
	"github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/internal/extract"
	"github.com/mrcis/mrcis/internal/indexing"
	"github.com/mrcis/mrcis/internal/lock"
	"github.com/mrcis/mrcis/internal/metrics"
	"github.com/mrcis/mrcis/internal/pipeline"
	"github.com/mrcis/mrcis/internal/resolver"
	"github.com/mrcis/mrcis/internal/store"
	"github.com/mrcis/mrcis/internal/watch"
	"github.com/mrcis/mrcis/pkg/storage"
)

// Mode is the runtime's coordination role over the shared data
// directory.
type Mode string

const (
	ModeWriter   Mode = "writer"
	ModeReadOnly Mode = "read-only"
)

// Runtime owns every long-lived component and the background tasks
// that drive them.
type Runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	backend *storage.EmbeddedBackend
	Store   *store.Store
	Lock    *lock.Lock

	embedClient *embedding.Client
	registry    *extract.Registry
	pipeline    *pipeline.Pipeline
	resolver    *resolver.Resolver
	indexer     *indexing.Service
	watcher     *watch.Watcher

	modeMu sync.RWMutex
	mode   Mode

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Runtime from a loaded Config but performs no I/O;
// call Start to bring components up.
func New(cfg *config.Config, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{cfg: cfg, logger: logger}
}

// Mode reports the runtime's current coordination role.
func (rt *Runtime) Mode() Mode {
	rt.modeMu.RLock()
	defer rt.modeMu.RUnlock()
	return rt.mode
}

func (rt *Runtime) setMode(m Mode) {
	rt.modeMu.Lock()
	rt.mode = m
	rt.modeMu.Unlock()
}

// Start executes the seven-step boot sequence: it
// initializes the stores, runs crash recovery, initializes the
// embedding client, attempts the Instance Lock, and starts either the
// full writer task set or a lock-watch task, wiring watcher events
// through the file event router.
func (rt *Runtime) Start(ctx context.Context, dataDir string) error {
	backend, err := storage.NewEmbeddedBackend(storage.EmbeddedConfig{
		DataDir:             dataDir,
		Engine:              rt.cfg.Storage.Backend,
		EmbeddingDimensions: rt.cfg.Embedding.Dimensions,
	})
	if err != nil {
		return errors.NewDatabaseError("cannot open mrcis data store", err.Error(), "check storage.data_dir and storage.backend in mrcis.toml", err)
	}
	rt.backend = backend

	if err := backend.EnsureSchema(); err != nil {
		return errors.NewDatabaseError("cannot initialize mrcis schema", err.Error(), "delete the data directory to rebuild from scratch, or check disk space", err)
	}
	if err := backend.CreateHNSWIndex(rt.cfg.Embedding.Dimensions); err != nil {
		rt.logger.Warn("runtime.hnsw.warning", "err", err)
	}

	rt.Store = store.New(backend)

	report, err := rt.Store.RecoverFromCrash(ctx)
	if err != nil {
		return fmt.Errorf("crash recovery: %w", err)
	}
	rt.logger.Info("runtime.recovery.complete",
		"files_reset_from_processing", report.FilesResetFromProcessing,
		"files_reenqueued", report.FilesReenqueued,
		"repositories_reset", report.RepositoriesReset,
	)

	var provider embedding.Provider
	if rt.cfg.Embedding.URL == "" {
		provider = &embedding.MockProvider{Dimensions: rt.cfg.Embedding.Dimensions}
	} else {
		provider = embedding.NewHTTPProvider(
			rt.cfg.Embedding.URL, rt.cfg.Embedding.Key, rt.cfg.Embedding.Model,
			time.Duration(rt.cfg.Embedding.TimeoutSeconds)*time.Second,
			rt.cfg.Embedding.AppendEOSToken, rt.cfg.Embedding.EOSToken,
		)
	}
	rt.embedClient = embedding.NewClient(provider, rt.cfg.Embedding.BatchSize, embedding.DefaultRetryConfig())

	rt.registry = extract.NewRegistry(extract.Options{MaxYAMLDepth: rt.cfg.Indexing.MaxYAMLDepth})
	rt.pipeline = pipeline.New(rt.Store, rt.registry, rt.embedClient)
	rt.resolver = resolver.New(rt.Store, 5)
	rt.indexer = indexing.New(rt.Store, rt.pipeline, rt.resolver, indexing.Config{
		BatchSize:         rt.cfg.Indexing.BatchSize,
		MaxRetries:        rt.cfg.Indexing.MaxRetries,
		RetryDelaySeconds: rt.cfg.Indexing.RetryDelaySeconds,
	}, rt.logger)

	rt.Lock = lock.New(dataDir, 90*time.Second)
	acquired, err := rt.Lock.TryAcquire()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel

	if acquired {
		rt.setMode(ModeWriter)
		if err := rt.startWriter(runCtx); err != nil {
			return err
		}
	} else {
		rt.setMode(ModeReadOnly)
		rt.startReadOnlyWatch(runCtx)
	}
	return nil
}

// startWriter reconciles configured repositories, scans them, and
// starts the five cooperating background tasks.
func (rt *Runtime) startWriter(ctx context.Context) error {
	if err := rt.reconcileRepositories(ctx); err != nil {
		return fmt.Errorf("reconcile repositories: %w", err)
	}

	targets, err := rt.watchTargets(ctx)
	if err != nil {
		return fmt.Errorf("build watch targets: %w", err)
	}

	for _, t := range targets {
		repo, err := rt.Store.GetRepository(ctx, t.RepositoryID)
		if err != nil {
			continue
		}
		if err := rt.indexer.ScanRepository(ctx, repo, rt.discoveryOptions()); err != nil {
			rt.logger.Error("runtime.scan.error", "repository", repo.Name, "err", err)
		}
	}

	rt.indexer.Start(ctx)
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		rt.resolver.Run(ctx, time.Duration(rt.cfg.Indexing.ResolutionIntervalSeconds)*time.Second, rt.cfg.Indexing.BatchSize)
	}()

	router := watch.New(rt.Store, rt.indexer, targets, rt.logger)
	watcher, err := watch.NewWatcher(router, targets, time.Duration(rt.cfg.Indexing.WatchDebounceMS)*time.Millisecond, rt.logger)
	if err != nil {
		return fmt.Errorf("start file watcher: %w", err)
	}
	rt.watcher = watcher
	watcher.Start(ctx)

	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		rt.heartbeatLoop(ctx)
	}()

	metrics.SetWriterMode(true)
	return nil
}

// startReadOnlyWatch runs only the lock-watch task: periodically
// attempt CheckAndPromote; on success, promote to
// writer by starting the full task set.
func (rt *Runtime) startReadOnlyWatch(ctx context.Context) {
	metrics.SetWriterMode(false)
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				promoted, err := rt.Lock.CheckAndPromote()
				if err != nil {
					rt.logger.Warn("runtime.lock.promote_error", "err", err)
					continue
				}
				if promoted {
					rt.logger.Info("runtime.lock.promoted_to_writer")
					rt.setMode(ModeWriter)
					if err := rt.startWriter(ctx); err != nil {
						rt.logger.Error("runtime.writer.start_error", "err", err)
					}
					return
				}
			}
		}
	}()
}

func (rt *Runtime) heartbeatLoop(ctx context.Context) {
	interval := 30 * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rt.Lock.Heartbeat(); err != nil {
				rt.logger.Error("runtime.lock.heartbeat_error", "err", err)
			}
		}
	}
}

// reconcileRepositories adds/updates State Store rows for every
// configured repository and is idempotent across restarts; repositories
// removed from the configuration are paused rather than deleted.
func (rt *Runtime) reconcileRepositories(ctx context.Context) error {
	existing, err := rt.Store.ListRepositories(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]*store.Repository, len(existing))
	for _, r := range existing {
		byName[r.Name] = r
	}

	configured := make(map[string]bool, len(rt.cfg.Repositories))
	for _, r := range rt.cfg.Repositories {
		configured[r.Name] = true
		if repo, ok := byName[r.Name]; ok {
			if repo.RootPath != r.Path {
				repo.RootPath = r.Path
				if err := rt.Store.UpsertRepository(ctx, repo); err != nil {
					return err
				}
			}
			continue
		}
		id := entity.NewID("repository", r.Name)
		if err := rt.Store.UpsertRepository(ctx, &store.Repository{
			ID:       id,
			Name:     r.Name,
			RootPath: r.Path,
			Status:   store.RepoPending,
		}); err != nil {
			return err
		}
	}

	for name, repo := range byName {
		if !configured[name] {
			repo.Status = store.RepoPaused
			if err := rt.Store.UpsertRepository(ctx, repo); err != nil {
				return err
			}
		}
	}
	return nil
}

func (rt *Runtime) watchTargets(ctx context.Context) ([]watch.Target, error) {
	repos, err := rt.Store.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}
	targets := make([]watch.Target, 0, len(repos))
	for _, r := range repos {
		if r.Status == store.RepoPaused {
			continue
		}
		targets = append(targets, watch.Target{
			RepositoryID: r.ID,
			Name:         r.Name,
			RootPath:     r.RootPath,
			IgnoreGlobs:  rt.cfg.Filters.Exclude,
		})
	}
	return targets, nil
}

func (rt *Runtime) discoveryOptions() discovery.Options {
	return discovery.Options{
		ExcludeGlobs: rt.cfg.Filters.Exclude,
		MaxFileSize:  rt.cfg.Filters.MaxFileSize,
		UseGitignore: rt.cfg.Filters.UseGitignore,
	}
}

// Stop cancels all background tasks, releases the lock if held, and
// closes store handles in reverse order.
func (rt *Runtime) Stop(ctx context.Context) error {
	if rt.cancel != nil {
		rt.cancel()
	}
	if rt.watcher != nil {
		rt.watcher.Stop()
	}
	if rt.indexer != nil {
		rt.indexer.Stop()
	}
	rt.wg.Wait()

	var firstErr error
	if rt.Lock != nil {
		if err := rt.Lock.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if rt.backend != nil {
		if err := rt.backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IndexingService exposes the Indexing Service to callers that need to
// force a synchronous index_file/reindex_repository call (pkg/tools
// reindex_repository, cmd/mrcis index/reindex).
func (rt *Runtime) IndexingService() *indexing.Service { return rt.indexer }

// Resolver exposes the Reference Resolver for ad hoc resolution passes.
func (rt *Runtime) Resolver() *resolver.Resolver { return rt.resolver }

// EmbedClient exposes the Embedding Client for search tools that embed
// query text.
func (rt *Runtime) EmbedClient() *embedding.Client { return rt.embedClient }
