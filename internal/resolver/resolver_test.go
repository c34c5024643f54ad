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

package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcis/mrcis/internal/entity"
	"github.com/mrcis/mrcis/internal/store"
	mrcistesting "github.com/mrcis/mrcis/internal/testing"
)

func newTestResolver(t *testing.T) (*Resolver, *store.Store) {
	t.Helper()
	backend := mrcistesting.SetupTestBackend(t)
	st := store.New(backend)
	return New(st, 3), st
}

func mustInsertEntity(t *testing.T, ctx context.Context, st *store.Store, e entity.Entity) {
	t.Helper()
	require.NoError(t, st.InsertEntities(ctx, []entity.Entity{e}))
}

func TestResolveBatchExactMatch(t *testing.T) {
	r, st := newTestResolver(t)
	ctx := context.Background()

	caller := &entity.Function{Hdr: entity.Header{ID: "ent_caller", RepositoryID: "repo1", FileID: "f1", EntityType: entity.TypeFunction, Name: "caller", QualifiedName: "pkg.caller", Language: "go"}}
	callee := &entity.Function{Hdr: entity.Header{ID: "ent_callee", RepositoryID: "repo1", FileID: "f1", EntityType: entity.TypeFunction, Name: "Validate", QualifiedName: "auth.Validate", Language: "go"}}
	mustInsertEntity(t, ctx, st, caller)
	mustInsertEntity(t, ctx, st, callee)

	ref := &entity.PendingReference{
		ID:                  "pref_1",
		SourceEntityID:      "ent_caller",
		SourceQualifiedName: "pkg.caller",
		SourceRepositoryID:  "repo1",
		TargetQualifiedName: "auth.Validate",
		RelationType:        entity.RelationCalls,
	}
	require.NoError(t, st.InsertPendingReferences(ctx, []*entity.PendingReference{ref}))

	resolved, err := r.ResolveBatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	got, err := st.GetPendingReference(ctx, "pref_1")
	require.NoError(t, err)
	assert.Equal(t, entity.PendingStatusResolved, got.Status)
	assert.Equal(t, "ent_callee", got.ResolvedTargetID)

	outgoing, err := st.GetOutgoingRelations(ctx, "ent_caller")
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, "ent_callee", outgoing[0].TargetID)
	assert.Equal(t, entity.RelationCalls, outgoing[0].RelationType)
}

func TestResolveBatchSuffixMatchPrefersSameRepository(t *testing.T) {
	r, st := newTestResolver(t)
	ctx := context.Background()

	other := &entity.Function{Hdr: entity.Header{ID: "ent_other_repo", RepositoryID: "repo2", FileID: "f2", EntityType: entity.TypeFunction, Name: "Validate", QualifiedName: "vendor.auth.Validate", Language: "go"}}
	local := &entity.Function{Hdr: entity.Header{ID: "ent_local", RepositoryID: "repo1", FileID: "f1", EntityType: entity.TypeFunction, Name: "Validate", QualifiedName: "auth.Validate", Language: "go"}}
	mustInsertEntity(t, ctx, st, other)
	mustInsertEntity(t, ctx, st, local)

	ref := &entity.PendingReference{
		ID:                  "pref_1",
		SourceEntityID:      "ent_caller",
		SourceQualifiedName: "pkg.caller",
		SourceRepositoryID:  "repo1",
		TargetQualifiedName: "Validate",
		RelationType:        entity.RelationCalls,
	}
	require.NoError(t, st.InsertPendingReferences(ctx, []*entity.PendingReference{ref}))

	resolved, err := r.ResolveBatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	got, err := st.GetPendingReference(ctx, "pref_1")
	require.NoError(t, err)
	assert.Equal(t, "ent_local", got.ResolvedTargetID)
}

func TestResolveBatchReceiverFilterNarrowsToMatchingCandidate(t *testing.T) {
	r, st := newTestResolver(t)
	ctx := context.Background()

	writerMethod := &entity.Method{Hdr: entity.Header{ID: "ent_writer", RepositoryID: "repo1", FileID: "f1", EntityType: entity.TypeMethod, Name: "Write", QualifiedName: "bufio.Writer.Write", Language: "go"}}
	readerMethod := &entity.Method{Hdr: entity.Header{ID: "ent_reader", RepositoryID: "repo1", FileID: "f1", EntityType: entity.TypeMethod, Name: "Write", QualifiedName: "os.File.Write", Language: "go"}}
	mustInsertEntity(t, ctx, st, writerMethod)
	mustInsertEntity(t, ctx, st, readerMethod)

	ref := &entity.PendingReference{
		ID:                  "pref_1",
		SourceEntityID:      "ent_caller",
		SourceQualifiedName: "pkg.caller",
		SourceRepositoryID:  "repo1",
		TargetQualifiedName: "Write",
		RelationType:        entity.RelationCalls,
		ReceiverExpr:        "writer",
	}
	require.NoError(t, st.InsertPendingReferences(ctx, []*entity.PendingReference{ref}))

	resolved, err := r.ResolveBatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	got, err := st.GetPendingReference(ctx, "pref_1")
	require.NoError(t, err)
	assert.Equal(t, "ent_writer", got.ResolvedTargetID)
}

func TestResolveBatchReceiverDisambiguatesAcrossRepositories(t *testing.T) {
	r, st := newTestResolver(t)
	ctx := context.Background()

	chartGet := &entity.Method{Hdr: entity.Header{ID: "ent_chart_get", RepositoryID: "repoA", FileID: "f1", EntityType: entity.TypeMethod, Name: "get", QualifiedName: "charts.ChartWriter.get", Language: "python"}}
	cacheGet := &entity.Method{Hdr: entity.Header{ID: "ent_cache_get", RepositoryID: "repoB", FileID: "f2", EntityType: entity.TypeMethod, Name: "get", QualifiedName: "cache.CacheManager.get", Language: "python"}}
	mustInsertEntity(t, ctx, st, chartGet)
	mustInsertEntity(t, ctx, st, cacheGet)

	ref := &entity.PendingReference{
		ID:                  "pref_1",
		SourceEntityID:      "ent_caller",
		SourceQualifiedName: "report.build",
		SourceRepositoryID:  "repoB",
		TargetQualifiedName: "get",
		RelationType:        entity.RelationCalls,
		ReceiverExpr:        "chart_writer",
	}
	require.NoError(t, st.InsertPendingReferences(ctx, []*entity.PendingReference{ref}))

	resolved, err := r.ResolveBatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	// The receiver filter ("chart_writer" -> "ChartWriter") outranks the
	// same-repository preference that would otherwise pick the cache hit.
	got, err := st.GetPendingReference(ctx, "pref_1")
	require.NoError(t, err)
	assert.Equal(t, "ent_chart_get", got.ResolvedTargetID)
}

func TestResolveBatchUnresolvedAfterMaxAttempts(t *testing.T) {
	r, st := newTestResolver(t)
	ctx := context.Background()

	ref := &entity.PendingReference{
		ID:                  "pref_1",
		SourceEntityID:      "ent_caller",
		SourceQualifiedName: "pkg.caller",
		SourceRepositoryID:  "repo1",
		TargetQualifiedName: "nonexistent.Target",
		RelationType:        entity.RelationCalls,
	}
	require.NoError(t, st.InsertPendingReferences(ctx, []*entity.PendingReference{ref}))

	for i := 0; i < 3; i++ {
		_, err := r.ResolveBatch(ctx, 10)
		require.NoError(t, err)
	}

	got, err := st.GetPendingReference(ctx, "pref_1")
	require.NoError(t, err)
	assert.Equal(t, entity.PendingStatusUnresolved, got.Status)
	assert.Equal(t, 3, got.Attempts)
}

func TestSnakeToPascal(t *testing.T) {
	assert.Equal(t, "LogWriter", snakeToPascal("log_writer"))
	assert.Equal(t, "Ctx", snakeToPascal("ctx"))
}
