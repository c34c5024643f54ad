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

// Package indexing implements the Indexing Service:
// the singleton work queue owner that scans repositories, drives the
// per-file Pipeline, retries transient failures, and invokes a
// Resolver pass after every file.
package indexing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrcis/mrcis/internal/discovery"
	"github.com/mrcis/mrcis/internal/entity"
	"github.com/mrcis/mrcis/internal/metrics"
	"github.com/mrcis/mrcis/internal/pipeline"
	"github.com/mrcis/mrcis/internal/store"
)

// Resolver is the subset of the Reference Resolver the Indexing Service
// drives after each processed file. internal/resolver.Resolver implements it; kept
// as an interface here so indexing never imports resolver's heavier
// disambiguation machinery.
type Resolver interface {
	ResolveBatch(ctx context.Context, limit int) (resolved int, err error)
}

// Config mirrors the relevant fields of internal/config.Indexing.
type Config struct {
	BatchSize          int
	MaxRetries         int
	RetryDelaySeconds  int
	ParseWorkers       int
}

// Service owns the singleton work queue and the long-running scan/
// process/retry tasks.
type Service struct {
	store    *store.Store
	pipeline *pipeline.Pipeline
	resolver Resolver
	cfg      Config
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New wires a Service from its collaborators.
func New(st *store.Store, pl *pipeline.Pipeline, rs Resolver, cfg Config, logger *slog.Logger) *Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelaySeconds <= 0 {
		cfg.RetryDelaySeconds = 60
	}
	if cfg.ParseWorkers <= 0 {
		cfg.ParseWorkers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, pipeline: pl, resolver: rs, cfg: cfg, logger: logger, stopCh: make(chan struct{})}
}

// IndexFile is the queueing operation: it
// computes the checksum, looks up any existing IndexedFile by
// (repositoryID, path), and short-circuits when unchanged and
// force=false. Otherwise it upserts the file row and enqueues it in
// one atomic step via Store.IndexFile.
func (s *Service) IndexFile(ctx context.Context, repositoryID, repoRoot, relPath string, force bool) (*store.EnqueueResult, error) {
	absPath := filepath.Join(repoRoot, filepath.FromSlash(relPath))
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", absPath, err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", absPath, err)
	}

	checksum := checksumBytes(data)
	id := entity.NewID("file", repositoryID, relPath)
	language := discovery.DetectLanguage(relPath)

	return s.store.IndexFile(ctx, id, repositoryID, relPath, checksum, language, info.Size(), float64(info.ModTime().Unix()), force)
}

// ScanRepository walks repo's root,
// calling IndexFile per discovered file, and transitions the
// repository to indexing. Discovery runs on the caller's goroutine;
// the per-file IndexFile/IndexFile calls fan out across
// cfg.ParseWorkers via errgroup so a large repository's initial scan
// isn't serialized purely on disk I/O.
func (s *Service) ScanRepository(ctx context.Context, repo *store.Repository, walkerOpts discovery.Options) error {
	if err := s.store.UpdateRepositoryStatus(ctx, repo.ID, store.RepoIndexing, ""); err != nil {
		return fmt.Errorf("mark repository indexing: %w", err)
	}

	walker := discovery.NewWalker(s.logger, walkerOpts)
	result, err := walker.Discover(repo.RootPath)
	if err != nil {
		_ = s.store.UpdateRepositoryStatus(ctx, repo.ID, store.RepoError, err.Error())
		return fmt.Errorf("discover %s: %w", repo.RootPath, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ParseWorkers)
	for _, f := range result.Files {
		f := f
		g.Go(func() error {
			id := entity.NewID("file", repo.ID, f.Path)
			_, err := s.store.IndexFile(gctx, id, repo.ID, f.Path, f.Checksum, f.Language, f.Size, float64(time.Now().Unix()), false)
			if err != nil {
				s.logger.Warn("indexing.scan.index_file_error", "repo", repo.Name, "path", f.Path, "err", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Start launches the processing loop and the periodic retry task as
// background goroutines. It returns immediately;
// callers stop the service with Stop.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.processLoop(ctx)
	go s.retryLoop(ctx)
}

// Stop signals both background tasks to exit and waits for them.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Service) processLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		fileID, err := s.store.DequeueNextFile(ctx)
		if err != nil {
			s.logger.Error("indexing.process.dequeue_error", "err", err)
			s.sleep(time.Second)
			continue
		}
		if depth, err := s.store.GetQueueLength(ctx); err == nil {
			metrics.SetQueueDepth(depth)
		}
		if fileID == "" {
			s.sleep(250 * time.Millisecond)
			continue
		}

		if err := s.processFile(ctx, fileID); err != nil {
			s.logger.Error("indexing.process.file_error", "file_id", fileID, "err", err)
		}
	}
}

// processFile runs one dequeued file through the Pipeline and applies
// the post-processing contract.
func (s *Service) processFile(ctx context.Context, fileID string) error {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("get file %s: %w", fileID, err)
	}

	repo, err := s.store.GetRepository(ctx, file.RepositoryID)
	if err != nil {
		return fmt.Errorf("get repository %s: %w", file.RepositoryID, err)
	}

	absPath := filepath.Join(repo.RootPath, filepath.FromSlash(file.Path))
	data, readErr := os.ReadFile(absPath)
	if readErr != nil {
		if errors.Is(readErr, os.ErrNotExist) {
			return s.handleMissingFile(ctx, file, repo)
		}
		return s.fail(ctx, file, repo, fmt.Errorf("read %s: %w", absPath, readErr))
	}

	if err := s.store.UpdateFileStatus(ctx, file.ID, store.FileProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	result, err := s.pipeline.Run(ctx, pipeline.Input{
		FileID:       file.ID,
		RepositoryID: file.RepositoryID,
		FilePath:     file.Path,
		Source:       data,
	})
	if err != nil {
		return s.fail(ctx, file, repo, err)
	}

	if err := s.store.UpdateFileIndexed(ctx, file.ID, result.EntityCount); err != nil {
		return fmt.Errorf("mark indexed: %w", err)
	}

	if err := s.recomputeRepositoryAggregates(ctx, repo.ID); err != nil {
		s.logger.Warn("indexing.process.aggregate_error", "repo", repo.ID, "err", err)
	}

	if err := s.maybeTransitionToWatching(ctx, repo.ID); err != nil {
		s.logger.Warn("indexing.process.watching_transition_error", "repo", repo.ID, "err", err)
	}

	if s.resolver != nil {
		resolved, rerr := s.resolver.ResolveBatch(ctx, s.cfg.BatchSize)
		if rerr != nil {
			s.logger.Warn("indexing.process.resolver_error", "repo", repo.ID, "err", rerr)
		} else if resolved > 0 {
			if err := s.recomputeRepositoryAggregates(ctx, repo.ID); err != nil {
				s.logger.Warn("indexing.process.aggregate_error", "repo", repo.ID, "err", err)
			}
		}
	}

	return nil
}

// handleMissingFile marks a file deleted and removes its graph/vector
// rows when the filesystem path no longer exists.
func (s *Service) handleMissingFile(ctx context.Context, file *store.IndexedFile, repo *store.Repository) error {
	if _, err := s.store.DeleteVectorsForFile(ctx, file.ID); err != nil {
		return fmt.Errorf("delete vectors for missing file %s: %w", file.ID, err)
	}
	if _, err := s.store.DeleteEntitiesForFile(ctx, file.ID); err != nil {
		return fmt.Errorf("delete entities for missing file %s: %w", file.ID, err)
	}
	if err := s.store.UpdateFileStatus(ctx, file.ID, store.FileDeleted, ""); err != nil {
		return fmt.Errorf("mark file deleted: %w", err)
	}
	return s.recomputeRepositoryAggregates(ctx, repo.ID)
}

// fail applies the transient/permanent failure policy: below
// max_retries it stays failed and is
// re-enqueued; at the threshold it is promoted to permanent_failure.
func (s *Service) fail(ctx context.Context, file *store.IndexedFile, repo *store.Repository, cause error) error {
	permanent, err := s.store.UpdateFileFailure(ctx, file.ID, cause.Error(), s.cfg.MaxRetries)
	if err != nil {
		return fmt.Errorf("record failure for %s: %w", file.ID, err)
	}
	metrics.RecordFileFailed()
	if !permanent {
		if err := s.store.EnqueueFile(ctx, file.ID, file.RepositoryID); err != nil {
			return fmt.Errorf("re-enqueue %s: %w", file.ID, err)
		}
	} else {
		metrics.RecordFilePermanentFailure()
		_ = s.store.UpdateRepositoryStatus(ctx, repo.ID, store.RepoError, fmt.Sprintf("permanent failure indexing %s: %v", file.Path, cause))
	}
	return nil
}

func (s *Service) recomputeRepositoryAggregates(ctx context.Context, repositoryID string) error {
	return s.store.RecomputeRepositoryStats(ctx, repositoryID)
}

// maybeTransitionToWatching moves a repository from indexing to
// watching once its queue has fully drained.
func (s *Service) maybeTransitionToWatching(ctx context.Context, repositoryID string) error {
	repo, err := s.store.GetRepository(ctx, repositoryID)
	if err != nil {
		return err
	}
	if repo.Status != store.RepoIndexing {
		return nil
	}
	pending, err := s.store.CountFilesByStatus(ctx, repositoryID, store.FilePending)
	if err != nil {
		return err
	}
	processing, err := s.store.CountFilesByStatus(ctx, repositoryID, store.FileProcessing)
	if err != nil {
		return err
	}
	if pending == 0 && processing == 0 {
		return s.store.UpdateRepositoryStatus(ctx, repositoryID, store.RepoWatching, "")
	}
	return nil
}

// retryLoop is the periodic safety net against crashes between "mark
// failed" and "enqueue".
func (s *Service) retryLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := time.Duration(s.cfg.RetryDelaySeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			files, err := s.store.GetRetryableFailedFiles(ctx)
			if err != nil {
				s.logger.Error("indexing.retry.list_error", "err", err)
				continue
			}
			for _, f := range files {
				if err := s.store.EnqueueFile(ctx, f.ID, f.RepositoryID); err != nil {
					s.logger.Error("indexing.retry.enqueue_error", "file_id", f.ID, "err", err)
				}
			}
		}
	}
}

func (s *Service) sleep(d time.Duration) {
	select {
	case <-s.stopCh:
	case <-time.After(d):
	}
}

func checksumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
