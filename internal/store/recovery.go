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

// RecoveryReport summarizes what RecoverFromCrash repaired, surfaced in
// startup logs.
type RecoveryReport struct {
	FilesResetFromProcessing int
	FilesReenqueued          int
	RepositoriesReset        int
}

// RecoverFromCrash restores the three invariants a clean shutdown would
// otherwise guarantee:
//
//  1. every file stuck in `processing` (no clean exit ever leaves a file
//     there) is reset to `pending`;
//  2. every `pending` file missing from the queue is re-enqueued;
//  3. every repository stuck in `indexing` is reset to `pending` so the
//     next scan picks it back up.
//
func (s *Store) RecoverFromCrash(ctx context.Context) (*RecoveryReport, error) {
	report := &RecoveryReport{}

	resetCount, err := s.resetProcessingFiles(ctx)
	if err != nil {
		return report, fmt.Errorf("reset processing files: %w", err)
	}
	report.FilesResetFromProcessing = resetCount

	reenqueued, err := s.EnqueuePendingFiles(ctx)
	if err != nil {
		return report, fmt.Errorf("re-enqueue pending files: %w", err)
	}
	report.FilesReenqueued = reenqueued

	repoCount, err := s.resetIndexingRepositories(ctx)
	if err != nil {
		return report, fmt.Errorf("reset indexing repositories: %w", err)
	}
	report.RepositoriesReset = repoCount

	return report, nil
}

func (s *Store) resetProcessingFiles(ctx context.Context) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, `?[id] := *indexed_file{id, status: "processing"}`, nil)
	if err != nil {
		return 0, fmt.Errorf("find processing files: %w", err)
	}

	count := 0
	for _, row := range result.Rows {
		id := scalarStr(row, 0)
		if err := s.UpdateFileStatus(ctx, id, FilePending, ""); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *Store) resetIndexingRepositories(ctx context.Context) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, `?[id] := *repository{id, status: "indexing"}`, nil)
	if err != nil {
		return 0, fmt.Errorf("find indexing repositories: %w", err)
	}

	count := 0
	for _, row := range result.Rows {
		id := scalarStr(row, 0)
		if err := s.UpdateRepositoryStatus(ctx, id, RepoPending, ""); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
