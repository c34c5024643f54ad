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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcis/mrcis/internal/entity"
	mrcistesting "github.com/mrcis/mrcis/internal/testing"
)

func TestGetReferencesIncomingAndOutgoing(t *testing.T) {
	st, backend := newTestStore(t)
	ctx := context.Background()

	mrcistesting.InsertTestRepository(t, backend, "repo1", "demo", "/tmp/demo", "watching")
	mrcistesting.InsertTestFile(t, backend, "file1", "repo1", "caller.go", "chk1", "go", 10)
	mrcistesting.InsertTestFile(t, backend, "file2", "repo1", "callee.go", "chk2", "go", 10)

	caller := &entity.Function{Hdr: entity.Header{ID: "ent_caller", RepositoryID: "repo1", FileID: "file1", EntityType: entity.TypeFunction, Name: "caller", QualifiedName: "pkg.caller", Language: "go"}}
	callee := &entity.Function{Hdr: entity.Header{ID: "ent_callee", RepositoryID: "repo1", FileID: "file2", EntityType: entity.TypeFunction, Name: "Validate", QualifiedName: "auth.Validate", Language: "go"}}
	require.NoError(t, st.InsertEntities(ctx, []entity.Entity{caller, callee}))

	line := 42
	rel := &entity.Relation{ID: "rel1", SourceID: "ent_caller", TargetID: "ent_callee", RelationType: entity.RelationCalls, LineNumber: &line}
	require.NoError(t, st.InsertRelation(ctx, rel))

	result, err := GetReferences(ctx, st, GetReferencesArgs{QualifiedName: "auth.Validate", IncludeOutgoing: true})
	require.NoError(t, err)
	require.Len(t, result.Incoming, 1)
	assert.Equal(t, "pkg.caller", result.Incoming[0].SourceEntity)
	assert.Equal(t, "caller.go", result.Incoming[0].FilePath)
	assert.Equal(t, "demo", result.Incoming[0].Repository)
	assert.Equal(t, 1, result.IncomingCount)
	assert.Equal(t, 0, result.OutgoingCount)
}

func TestFindUsagesSuffixResolution(t *testing.T) {
	st, backend := newTestStore(t)
	ctx := context.Background()

	mrcistesting.InsertTestRepository(t, backend, "repo1", "demo", "/tmp/demo", "watching")
	mrcistesting.InsertTestFile(t, backend, "file2", "repo1", "callee.go", "chk2", "go", 10)

	callee := &entity.Function{Hdr: entity.Header{ID: "ent_callee", RepositoryID: "repo1", FileID: "file2", EntityType: entity.TypeFunction, Name: "Validate", QualifiedName: "internal.auth.Validate", Language: "go"}}
	require.NoError(t, st.InsertEntities(ctx, []entity.Entity{callee}))

	result, err := FindUsages(ctx, st, FindUsagesArgs{Symbol: "Validate"})
	require.NoError(t, err)
	assert.Equal(t, "internal.auth.Validate", result.ResolvedSymbol)
}

func TestFindUsagesNoMatchSuggestsNearest(t *testing.T) {
	st, backend := newTestStore(t)
	ctx := context.Background()

	mrcistesting.InsertTestRepository(t, backend, "repo1", "demo", "/tmp/demo", "watching")
	mrcistesting.InsertTestFile(t, backend, "file2", "repo1", "callee.go", "chk2", "go", 10)

	callee := &entity.Function{Hdr: entity.Header{ID: "ent_callee", RepositoryID: "repo1", FileID: "file2", EntityType: entity.TypeFunction, Name: "Validate", QualifiedName: "internal.auth.Validate", Language: "go"}}
	require.NoError(t, st.InsertEntities(ctx, []entity.Entity{callee}))

	result, err := FindUsages(ctx, st, FindUsagesArgs{Symbol: "Validatee"})
	require.NoError(t, err)
	assert.Empty(t, result.ResolvedSymbol)
	assert.NotEmpty(t, result.DidYouMean)
}

func TestGetReferencesRequiresQualifiedName(t *testing.T) {
	st, _ := newTestStore(t)
	_, err := GetReferences(context.Background(), st, GetReferencesArgs{})
	assert.Error(t, err)
}
