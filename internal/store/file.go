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

package store

import (
	"context"
	"fmt"
)

// FileStatus is the closed set of IndexedFile lifecycle states.
type FileStatus string

const (
	FilePending           FileStatus = "pending"
	FileProcessing        FileStatus = "processing"
	FileIndexed           FileStatus = "indexed"
	FileFailed            FileStatus = "failed"
	FilePermanentFailure  FileStatus = "permanent_failure"
	FileDeleted           FileStatus = "deleted"
)

// IndexedFile mirrors the `indexed_file` relation.
// Uniqueness is (RepositoryID, Path).
type IndexedFile struct {
	ID             string
	RepositoryID   string
	Path           string
	Checksum       string
	FileSize       int64
	Language       string
	Status         FileStatus
	FailureCount   int
	ErrorMessage   string
	EntityCount    int
	LastModifiedAt float64
	LastIndexedAt  float64
}

const indexedFileCols = "id, repository_id, path, checksum, file_size, language, status, failure_count, error_message, entity_count, last_modified_at, last_indexed_at"

func rowToIndexedFile(row []any) *IndexedFile {
	return &IndexedFile{
		ID:             scalarStr(row, 0),
		RepositoryID:   scalarStr(row, 1),
		Path:           scalarStr(row, 2),
		Checksum:       scalarStr(row, 3),
		FileSize:       int64(scalarInt(row, 4)),
		Language:       scalarStr(row, 5),
		Status:         FileStatus(scalarStr(row, 6)),
		FailureCount:   scalarInt(row, 7),
		ErrorMessage:   scalarStr(row, 8),
		EntityCount:    scalarInt(row, 9),
		LastModifiedAt: scalarFloat(row, 10),
		LastIndexedAt:  scalarFloat(row, 11),
	}
}

func (s *Store) putIndexedFile(ctx context.Context, f *IndexedFile) error {
	query := fmt.Sprintf(`?[%s] <- [[$id, $repository_id, $path, $checksum, $file_size, $language, $status, $failure_count, $error_message, $entity_count, $last_modified_at, $last_indexed_at]]
		:put indexed_file { %s }`, indexedFileCols, indexedFileCols)

	return s.backend.Execute(ctx, query, map[string]any{
		"id":               f.ID,
		"repository_id":    f.RepositoryID,
		"path":             f.Path,
		"checksum":         f.Checksum,
		"file_size":        f.FileSize,
		"language":         f.Language,
		"status":           string(f.Status),
		"failure_count":    f.FailureCount,
		"error_message":    f.ErrorMessage,
		"entity_count":     f.EntityCount,
		"last_modified_at": f.LastModifiedAt,
		"last_indexed_at":  f.LastIndexedAt,
	})
}

// GetFile looks up an indexed file by id.
func (s *Store) GetFile(ctx context.Context, id string) (*IndexedFile, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, fmt.Sprintf(
		`?[%s] := *indexed_file{%s}, id = $id`, indexedFileCols, indexedFileCols),
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if len(result.Rows) == 0 {
		return nil, ErrNotFound
	}
	return rowToIndexedFile(result.Rows[0]), nil
}

// GetFileByPath looks up an indexed file by its (repository_id, path) key.
func (s *Store) GetFileByPath(ctx context.Context, repositoryID, path string) (*IndexedFile, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, fmt.Sprintf(
		`?[%s] := *indexed_file{%s}, repository_id = $repository_id, path = $path`, indexedFileCols, indexedFileCols),
		map[string]any{"repository_id": repositoryID, "path": path})
	if err != nil {
		return nil, fmt.Errorf("get file by path: %w", err)
	}
	if len(result.Rows) == 0 {
		return nil, ErrNotFound
	}
	return rowToIndexedFile(result.Rows[0]), nil
}

// ListFilesByRepository returns every file belonging to a repository.
func (s *Store) ListFilesByRepository(ctx context.Context, repositoryID string) ([]*IndexedFile, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, fmt.Sprintf(
		`?[%s] := *indexed_file{%s}, repository_id = $repository_id`, indexedFileCols, indexedFileCols),
		map[string]any{"repository_id": repositoryID})
	if err != nil {
		return nil, fmt.Errorf("list files by repository: %w", err)
	}
	files := make([]*IndexedFile, 0, len(result.Rows))
	for _, row := range result.Rows {
		files = append(files, rowToIndexedFile(row))
	}
	return files, nil
}

// EnqueueResult reports what IndexFile decided to do.
type EnqueueResult struct {
	FileID    string
	Enqueued  bool
	Unchanged bool
}

// IndexFile is the crash-safe upsert-then-enqueue operation: it looks
// up any existing file by (repositoryID, path); if
// force is false and the checksum is unchanged it returns the existing
// id without enqueueing; otherwise it upserts the row with status
// pending and enqueues it. The upsert and the enqueue happen under the
// same caller-held intent so a crash between them cannot orphan a
// pending file — recovery additionally re-enqueues any pending file
// missing from the queue (RecoverFromCrash).
func (s *Store) IndexFile(ctx context.Context, id, repositoryID, path, checksum, language string, fileSize int64, lastModifiedAt float64, force bool) (*EnqueueResult, error) {
	existing, err := s.GetFileByPath(ctx, repositoryID, path)
	if err != nil && err != ErrNotFound {
		return nil, err
	}

	fileID := id
	if existing != nil {
		fileID = existing.ID
		if !force && existing.Checksum == checksum {
			return &EnqueueResult{FileID: fileID, Enqueued: false, Unchanged: true}, nil
		}
	}

	f := &IndexedFile{
		ID:             fileID,
		RepositoryID:   repositoryID,
		Path:           path,
		Checksum:       checksum,
		FileSize:       fileSize,
		Language:       language,
		Status:         FilePending,
		LastModifiedAt: lastModifiedAt,
	}
	if existing != nil {
		f.EntityCount = existing.EntityCount
		f.LastIndexedAt = existing.LastIndexedAt
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := s.putIndexedFile(ctx, f); err != nil {
		return nil, fmt.Errorf("upsert file: %w", err)
	}
	if err := s.EnqueueFile(ctx, fileID, repositoryID); err != nil {
		return nil, fmt.Errorf("enqueue file: %w", err)
	}
	return &EnqueueResult{FileID: fileID, Enqueued: true}, nil
}

// UpdateFileStatus transitions a file's status and error message,
// preserving the other columns (the periodic retry task and the
// pipeline's per-step transitions both go through this).
func (s *Store) UpdateFileStatus(ctx context.Context, id string, status FileStatus, errorMessage string) error {
	f, err := s.GetFile(ctx, id)
	if err != nil {
		return err
	}
	f.Status = status
	f.ErrorMessage = errorMessage

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return s.putIndexedFile(ctx, f)
}

// UpdateFileIndexed marks a file indexed with its final entity count.
func (s *Store) UpdateFileIndexed(ctx context.Context, id string, entityCount int) error {
	f, err := s.GetFile(ctx, id)
	if err != nil {
		return err
	}
	f.Status = FileIndexed
	f.EntityCount = entityCount
	f.ErrorMessage = ""
	f.LastIndexedAt = now()

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return s.putIndexedFile(ctx, f)
}

// UpdateFileFailure implements the transient/permanent failure policy
//: increments failure_count; below
// maxRetries it stays failed and the caller should re-enqueue; at or
// above maxRetries it is promoted to permanent_failure and must not be
// re-enqueued. Returns true if the file was promoted to permanent.
func (s *Store) UpdateFileFailure(ctx context.Context, id string, errorMessage string, maxRetries int) (permanent bool, err error) {
	f, err := s.GetFile(ctx, id)
	if err != nil {
		return false, err
	}
	f.FailureCount++
	f.ErrorMessage = errorMessage
	if f.FailureCount >= maxRetries {
		f.Status = FilePermanentFailure
		permanent = true
	} else {
		f.Status = FileFailed
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	if err := s.putIndexedFile(ctx, f); err != nil {
		return false, err
	}
	return permanent, nil
}

// MarkRepositoryFilesPending resets every non-deleted file in a
// repository to pending, for `reindex --force`.
func (s *Store) MarkRepositoryFilesPending(ctx context.Context, repositoryID string) (int, error) {
	files, err := s.ListFilesByRepository(ctx, repositoryID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, f := range files {
		if f.Status == FileDeleted {
			continue
		}
		f.Status = FilePending
		f.FailureCount = 0
		f.ErrorMessage = ""

		wctx, cancel := withTimeout(ctx)
		err := s.putIndexedFile(wctx, f)
		cancel()
		if err != nil {
			return count, err
		}
		if err := s.EnqueueFile(ctx, f.ID, repositoryID); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// CountFilesByStatus returns the number of files in a repository (or
// across all repositories when repositoryID is "") with the given
// status, used by get_index_status.
func (s *Store) CountFilesByStatus(ctx context.Context, repositoryID string, status FileStatus) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `?[count(id)] := *indexed_file{id, status: $status}`
	params := map[string]any{"status": string(status)}
	if repositoryID != "" {
		query = `?[count(id)] := *indexed_file{id, repository_id: $repository_id, status: $status}`
		params["repository_id"] = repositoryID
	}

	result, err := s.backend.Query(ctx, query, params)
	if err != nil {
		return 0, fmt.Errorf("count files by status: %w", err)
	}
	if len(result.Rows) == 0 {
		return 0, nil
	}
	return scalarInt(result.Rows[0], 0), nil
}

// GetRetryableFailedFiles returns every failed (not permanent_failure)
// file not currently present in the queue — the periodic retry task's
// safety net against crashes between "mark failed" and "enqueue".
func (s *Store) GetRetryableFailedFiles(ctx context.Context) ([]*IndexedFile, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, fmt.Sprintf(
		`?[%s] := *indexed_file{%s}, status = "failed", not *queue_entry{file_id: id}`,
		indexedFileCols, indexedFileCols), nil)
	if err != nil {
		return nil, fmt.Errorf("get retryable failed files: %w", err)
	}
	files := make([]*IndexedFile, 0, len(result.Rows))
	for _, row := range result.Rows {
		files = append(files, rowToIndexedFile(row))
	}
	return files, nil
}

// --- Queue operations (backed by the queue_entry relation) ---

const queueEntryCols = "file_id, repository_id, priority, queued_at, seq"

// EnqueueFile idempotently adds a file to the work queue at default
// priority.
func (s *Store) EnqueueFile(ctx context.Context, fileID, repositoryID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	return s.enqueueFileLocked(ctx, fileID, repositoryID, 0)
}

// enqueueFileLocked is enqueueFile's body, callable when seqMu is
// already held (EnqueuePendingFiles holds it for the whole batch).
func (s *Store) enqueueFileLocked(ctx context.Context, fileID, repositoryID string, priority int) error {
	seq, err := s.nextQueueSeqLocked(ctx)
	if err != nil {
		return err
	}

	existing, err := s.backend.Query(ctx, `?[file_id] := *queue_entry{file_id}, file_id = $file_id`,
		map[string]any{"file_id": fileID})
	if err != nil {
		return fmt.Errorf("check queue entry: %w", err)
	}
	if len(existing.Rows) > 0 {
		return nil
	}

	query := fmt.Sprintf(`?[%s] <- [[$file_id, $repository_id, $priority, $queued_at, $seq]]
		:put queue_entry { %s }`, queueEntryCols, queueEntryCols)
	return s.backend.Execute(ctx, query, map[string]any{
		"file_id":       fileID,
		"repository_id": repositoryID,
		"priority":      priority,
		"queued_at":     now(),
		"seq":           seq,
	})
}

func (s *Store) nextQueueSeqLocked(ctx context.Context) (int, error) {
	result, err := s.backend.Query(ctx, `?[m] := *queue_entry{seq}, m = max(seq)`, nil)
	if err != nil {
		return 0, fmt.Errorf("get max queue seq: %w", err)
	}
	if len(result.Rows) == 0 || result.Rows[0][0] == nil {
		return 1, nil
	}
	return scalarInt(result.Rows[0], 0) + 1, nil
}

// EnqueuePendingFiles re-enqueues every pending file not already in the
// queue.
func (s *Store) EnqueuePendingFiles(ctx context.Context) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx,
		`?[id, repository_id] := *indexed_file{id, repository_id, status: "pending"}, not *queue_entry{file_id: id}`, nil)
	if err != nil {
		return 0, fmt.Errorf("find orphaned pending files: %w", err)
	}

	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	count := 0
	for _, row := range result.Rows {
		fileID := scalarStr(row, 0)
		repositoryID := scalarStr(row, 1)
		if err := s.enqueueFileLocked(ctx, fileID, repositoryID, 0); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// DequeueNextFile atomically pops the highest-priority, lowest-seq
// queue entry and returns its file id, or "" with a nil error when the
// queue is empty — an idle queue is the steady state once a repository
// reaches watching, not a failure. CozoScript
// has no RETURNING clause, so this peeks with a read-only Query and then
// deletes the same row with a separate Execute — the read-then-delete
// pair is atomic with respect to other dequeues and enqueues on this
// Store because all of them hold seqMu.
func (s *Store) DequeueNextFile(ctx context.Context) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	result, err := s.backend.Query(ctx,
		`?[file_id, priority, seq] := *queue_entry{file_id, priority, seq}
		:order -priority, seq
		:limit 1`, nil)
	if err != nil {
		return "", fmt.Errorf("peek queue: %w", err)
	}
	if len(result.Rows) == 0 {
		return "", nil
	}
	fileID := scalarStr(result.Rows[0], 0)

	if err := s.backend.Execute(ctx, `?[file_id] <- [[$file_id]] :rm queue_entry { file_id }`,
		map[string]any{"file_id": fileID}); err != nil {
		return "", fmt.Errorf("dequeue file: %w", err)
	}
	return fileID, nil
}

// GetQueueLength returns the number of files currently queued.
func (s *Store) GetQueueLength(ctx context.Context) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, `?[count(file_id)] := *queue_entry{file_id}`, nil)
	if err != nil {
		return 0, fmt.Errorf("get queue length: %w", err)
	}
	if len(result.Rows) == 0 {
		return 0, nil
	}
	return scalarInt(result.Rows[0], 0), nil
}
