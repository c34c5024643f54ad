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

package main

import (
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mrcis/mrcis/internal/config"
	"github.com/mrcis/mrcis/internal/discovery"
	"github.com/mrcis/mrcis/internal/embedding"
	"github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/internal/lock"
	"github.com/mrcis/mrcis/internal/store"
	"github.com/mrcis/mrcis/pkg/storage"
)

// lockStaleAfter is how old a writer's heartbeat may be before another
// process may take the lock over.
const lockStaleAfter = 90 * time.Second

// loadConfig reads mrcis.toml from the --config path.
func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.String("config"))
}

// repoSetID derives the data-directory namespace from the configured
// repository names, so two configurations indexing different repository
// sets never share a store.
func repoSetID(cfg *config.Config) string {
	if len(cfg.Repositories) == 0 {
		return "default"
	}
	names := make([]string, 0, len(cfg.Repositories))
	for _, r := range cfg.Repositories {
		names = append(names, sanitizeName(r.Name))
	}
	sort.Strings(names)
	return strings.Join(names, "+")
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, name)
}

// dataDirFor resolves the on-disk data directory for a loaded config.
func dataDirFor(cfg *config.Config) (string, error) {
	return cfg.DataDirFor(repoSetID(cfg))
}

// openStore opens the embedded backend at the config's data directory
// and wraps it in a Store. The caller must Close the returned backend.
// Query-shaped commands use this directly without touching the writer
// lock.
func openStore(cfg *config.Config) (*storage.EmbeddedBackend, *store.Store, error) {
	dataDir, err := dataDirFor(cfg)
	if err != nil {
		return nil, nil, err
	}
	backend, err := storage.NewEmbeddedBackend(storage.EmbeddedConfig{
		DataDir:             dataDir,
		Engine:              cfg.Storage.Backend,
		EmbeddingDimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, nil, errors.NewDatabaseError(
			"cannot open mrcis data store",
			err.Error(),
			"run 'mrcis init' first, or check storage.data_dir in mrcis.toml",
			err,
		)
	}
	if err := backend.EnsureSchema(); err != nil {
		_ = backend.Close()
		return nil, nil, errors.NewDatabaseError("cannot initialize mrcis schema", err.Error(), "delete the data directory and run 'mrcis init' to rebuild", err)
	}
	return backend, store.New(backend), nil
}

// newEmbedder builds the embedding client from config. An empty
// endpoint URL selects the deterministic mock provider, which keeps
// query commands usable without a running embedding service.
func newEmbedder(cfg *config.Config) *embedding.Client {
	var provider embedding.Provider
	if cfg.Embedding.URL == "" {
		provider = &embedding.MockProvider{Dimensions: cfg.Embedding.Dimensions}
	} else {
		provider = embedding.NewHTTPProvider(
			cfg.Embedding.URL, cfg.Embedding.Key, cfg.Embedding.Model,
			time.Duration(cfg.Embedding.TimeoutSeconds)*time.Second,
			cfg.Embedding.AppendEOSToken, cfg.Embedding.EOSToken,
		)
	}
	return embedding.NewClient(provider, cfg.Embedding.BatchSize, embedding.DefaultRetryConfig())
}

// writerHolder reports the live holder of the writer lock, or nil when
// the lock is absent, stale, or owned by a dead process.
func writerHolder(cfg *config.Config) *lock.Info {
	dataDir, err := dataDirFor(cfg)
	if err != nil {
		return nil
	}
	return lock.New(dataDir, lockStaleAfter).Holder()
}

// discoveryOptions maps the config's file filters onto walker options.
func discoveryOptions(cfg *config.Config) discovery.Options {
	return discovery.Options{
		ExcludeGlobs: cfg.Filters.Exclude,
		MaxFileSize:  cfg.Filters.MaxFileSize,
		UseGitignore: cfg.Filters.UseGitignore,
	}
}
