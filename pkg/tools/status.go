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

package tools

import (
	"context"
	"fmt"

	"github.com/mrcis/mrcis/internal/store"
)

// GetIndexStatusArgs is get_index_status' input.
type GetIndexStatusArgs struct {
	Repository string // optional repository name; all repositories when empty
}

// RepositoryStatus is one repository's counts.
type RepositoryStatus struct {
	Name              string
	Status            store.RepositoryStatus
	FileCount         int
	EntityCount       int
	RelationCount     int
	PendingFiles      int
	FailedFiles       int
	PermanentFailures int
	LastIndexedAt     float64
	LastIndexedCommit string
	ErrorMessage      string
}

// GetIndexStatusResult is get_index_status' output plus a writer-status
// flag.
type GetIndexStatusResult struct {
	Repositories []RepositoryStatus
	IsWriter     bool
}

// GetIndexStatus reports per-repository indexing progress from the
// repository rows' incrementally-maintained counters plus live
// per-status file counts.
func GetIndexStatus(ctx context.Context, st *store.Store, isWriter bool, args GetIndexStatusArgs) (*GetIndexStatusResult, error) {
	var repos []*store.Repository
	if args.Repository != "" {
		repo, err := st.GetRepositoryByName(ctx, args.Repository)
		if err != nil {
			return nil, fmt.Errorf("get_index_status: unknown repository %q: %w", args.Repository, err)
		}
		repos = []*store.Repository{repo}
	} else {
		all, err := st.ListRepositories(ctx)
		if err != nil {
			return nil, fmt.Errorf("get_index_status: %w", err)
		}
		repos = all
	}

	out := make([]RepositoryStatus, 0, len(repos))
	for _, repo := range repos {
		pending, err := st.CountFilesByStatus(ctx, repo.ID, store.FilePending)
		if err != nil {
			return nil, fmt.Errorf("get_index_status: count pending: %w", err)
		}
		failed, err := st.CountFilesByStatus(ctx, repo.ID, store.FileFailed)
		if err != nil {
			return nil, fmt.Errorf("get_index_status: count failed: %w", err)
		}
		permanent, err := st.CountFilesByStatus(ctx, repo.ID, store.FilePermanentFailure)
		if err != nil {
			return nil, fmt.Errorf("get_index_status: count permanent failures: %w", err)
		}
		out = append(out, RepositoryStatus{
			Name:              repo.Name,
			Status:            repo.Status,
			FileCount:         repo.FileCount,
			EntityCount:       repo.EntityCount,
			RelationCount:     repo.RelationCount,
			PendingFiles:      pending,
			FailedFiles:       failed,
			PermanentFailures: permanent,
			LastIndexedAt:     repo.LastIndexedAt,
			LastIndexedCommit: repo.LastIndexedCommit,
			ErrorMessage:      repo.ErrorMessage,
		})
	}
	return &GetIndexStatusResult{Repositories: out, IsWriter: isWriter}, nil
}
