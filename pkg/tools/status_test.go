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

	mrcistesting "github.com/mrcis/mrcis/internal/testing"
)

func TestGetIndexStatusSingleRepository(t *testing.T) {
	st, backend := newTestStore(t)
	ctx := context.Background()

	mrcistesting.InsertTestRepository(t, backend, "repo1", "demo", "/tmp/demo", "watching")
	mrcistesting.InsertTestFile(t, backend, "file1", "repo1", "a.go", "chk1", "go", 10)

	require.NoError(t, st.UpdateFileStatus(ctx, "file1", "pending", ""))

	result, err := GetIndexStatus(ctx, st, true, GetIndexStatusArgs{Repository: "demo"})
	require.NoError(t, err)
	require.Len(t, result.Repositories, 1)
	assert.Equal(t, "demo", result.Repositories[0].Name)
	assert.Equal(t, 1, result.Repositories[0].PendingFiles)
	assert.True(t, result.IsWriter)
}

func TestGetIndexStatusAllRepositories(t *testing.T) {
	st, backend := newTestStore(t)
	ctx := context.Background()

	mrcistesting.InsertTestRepository(t, backend, "repo1", "one", "/tmp/one", "watching")
	mrcistesting.InsertTestRepository(t, backend, "repo2", "two", "/tmp/two", "indexing")

	result, err := GetIndexStatus(ctx, st, false, GetIndexStatusArgs{})
	require.NoError(t, err)
	assert.Len(t, result.Repositories, 2)
	assert.False(t, result.IsWriter)
}

func TestGetIndexStatusUnknownRepository(t *testing.T) {
	st, _ := newTestStore(t)
	_, err := GetIndexStatus(context.Background(), st, true, GetIndexStatusArgs{Repository: "missing"})
	assert.Error(t, err)
}
