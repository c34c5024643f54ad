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
	"github.com/mrcis/mrcis/internal/store"
	mrcistesting "github.com/mrcis/mrcis/internal/testing"
	"github.com/mrcis/mrcis/pkg/storage"
)

func newTestStore(t *testing.T) (*store.Store, *storage.EmbeddedBackend) {
	t.Helper()
	backend := mrcistesting.SetupTestBackend(t)
	return store.New(backend), backend
}

func TestFindSymbolExactMatch(t *testing.T) {
	st, backend := newTestStore(t)
	ctx := context.Background()

	mrcistesting.InsertTestRepository(t, backend, "repo1", "demo", "/tmp/demo", "watching")
	mrcistesting.InsertTestFile(t, backend, "file1", "repo1", "auth/validate.go", "chk1", "go", 100)

	fn := &entity.Function{
		Hdr: entity.Header{
			ID: "ent1", RepositoryID: "repo1", FileID: "file1",
			EntityType: entity.TypeFunction, Name: "Validate",
			QualifiedName: "auth.Validate", Language: "go",
			LineStart: 10, LineEnd: 20, Signature: "func Validate(tok string) error",
		},
		ReturnType: "error",
		Parameters: []entity.Parameter{{Name: "tok", Type: "string"}},
	}
	require.NoError(t, st.InsertEntities(ctx, []entity.Entity{fn}))

	result, err := FindSymbol(ctx, st, FindSymbolArgs{QualifiedName: "auth.Validate"})
	require.NoError(t, err)
	require.NotNil(t, result.Symbol)
	assert.Equal(t, "auth.Validate", result.Symbol.QualifiedName)
	assert.Equal(t, "error", result.Symbol.ReturnType)
	assert.Equal(t, "auth/validate.go", result.Symbol.FilePath)
}

func TestFindSymbolSuffixFallback(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	fn := &entity.Function{Hdr: entity.Header{
		ID: "ent1", RepositoryID: "repo1", FileID: "file1",
		EntityType: entity.TypeFunction, Name: "Validate",
		QualifiedName: "internal.auth.Validate", Language: "go",
	}}
	require.NoError(t, st.InsertEntities(ctx, []entity.Entity{fn}))

	result, err := FindSymbol(ctx, st, FindSymbolArgs{QualifiedName: "auth.Validate"})
	require.NoError(t, err)
	require.NotNil(t, result.Symbol)
	assert.Equal(t, "internal.auth.Validate", result.Symbol.QualifiedName)
}

func TestFindSymbolNoMatch(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	result, err := FindSymbol(ctx, st, FindSymbolArgs{QualifiedName: "nothing.Here"})
	require.NoError(t, err)
	assert.Nil(t, result.Symbol)
}

func TestFindSymbolRequiresQualifiedName(t *testing.T) {
	st, _ := newTestStore(t)
	_, err := FindSymbol(context.Background(), st, FindSymbolArgs{})
	assert.Error(t, err)
}
