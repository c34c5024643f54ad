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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mrcis/mrcis/internal/config"
	"github.com/mrcis/mrcis/internal/embedding"
	"github.com/mrcis/mrcis/internal/lock"
	"github.com/mrcis/mrcis/internal/store"
	"github.com/mrcis/mrcis/pkg/tools"
)

// rpcRequest is one JSON-RPC 2.0 request line read from stdin.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// rpcError is the error member of a JSON-RPC 2.0 response.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcResponse is one JSON-RPC 2.0 response line written to stdout.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

const (
	rpcParseError     = -32700
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcInternalError  = -32603
)

// searchCodeParams mirrors tools.SearchCodeArgs with wire names.
type searchCodeParams struct {
	Query      string `json:"query"`
	Limit      int    `json:"limit"`
	Repository string `json:"repository"`
	Language   string `json:"language"`
	EntityType string `json:"entity_type"`
}

type findSymbolParams struct {
	QualifiedName string `json:"qualified_name"`
	IncludeSource bool   `json:"include_source"`
}

type getReferencesParams struct {
	QualifiedName   string `json:"qualified_name"`
	IncludeOutgoing bool   `json:"include_outgoing"`
}

type findUsagesParams struct {
	Symbol          string `json:"symbol"`
	Repository      string `json:"repository"`
	IncludeOutgoing bool   `json:"include_outgoing"`
}

type getIndexStatusParams struct {
	Repository string `json:"repository"`
}

type reindexRepositoryParams struct {
	Repository string `json:"repository"`
	Force      bool   `json:"force"`
	DryRun     bool   `json:"dry_run"`
}

// mcpServer dispatches tool calls against an open store. It is
// deliberately transport-thin: one method per tool, no batching, no
// notifications.
type mcpServer struct {
	cfg      *config.Config
	st       *store.Store
	embedder *embedding.Client
	dataDir  string
}

func runMCP(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	backend, st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	dataDir, err := dataDirFor(cfg)
	if err != nil {
		return err
	}

	srv := &mcpServer{cfg: cfg, st: st, embedder: newEmbedder(cfg), dataDir: dataDir}
	return srv.serve(c.Context, os.Stdin, os.Stdout)
}

// serve reads newline-delimited JSON-RPC requests until EOF.
func (s *mcpServer) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: rpcParseError, Message: "parse error: " + err.Error()}})
			continue
		}

		result, rerr := s.dispatch(ctx, req.Method, req.Params)
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
		if rerr != nil {
			resp.Error = rerr
		} else {
			resp.Result = result
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// dispatch maps a method name onto the matching tool call.
func (s *mcpServer) dispatch(ctx context.Context, method string, params json.RawMessage) (any, *rpcError) {
	switch method {
	case "search_code":
		var p searchCodeParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		result, err := tools.SearchCode(ctx, s.st, s.embedder, tools.SearchCodeArgs{
			Query: p.Query, Limit: p.Limit, Repository: p.Repository,
			Language: p.Language, EntityType: p.EntityType,
		})
		return wrapResult(result, err)

	case "find_symbol":
		var p findSymbolParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		result, err := tools.FindSymbol(ctx, s.st, tools.FindSymbolArgs{
			QualifiedName: p.QualifiedName, IncludeSource: p.IncludeSource,
		})
		return wrapResult(result, err)

	case "get_references":
		var p getReferencesParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		result, err := tools.GetReferences(ctx, s.st, tools.GetReferencesArgs{
			QualifiedName: p.QualifiedName, IncludeOutgoing: p.IncludeOutgoing,
		})
		return wrapResult(result, err)

	case "find_usages":
		var p findUsagesParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		result, err := tools.FindUsages(ctx, s.st, tools.FindUsagesArgs{
			Symbol: p.Symbol, Repository: p.Repository, IncludeOutgoing: p.IncludeOutgoing,
		})
		return wrapResult(result, err)

	case "get_index_status":
		var p getIndexStatusParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		holder := lock.New(s.dataDir, lockStaleAfter).Holder()
		result, err := tools.GetIndexStatus(ctx, s.st, holder != nil, tools.GetIndexStatusArgs{Repository: p.Repository})
		return wrapResult(result, err)

	case "reindex_repository":
		var p reindexRepositoryParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		lk := lock.New(s.dataDir, lockStaleAfter)
		isWriter := p.DryRun
		if !p.DryRun {
			acquired, err := lk.TryAcquire()
			if err != nil {
				return nil, &rpcError{Code: rpcInternalError, Message: err.Error()}
			}
			isWriter = acquired
			if acquired {
				defer func() { _ = lk.Release() }()
			}
		}
		result, err := tools.ReindexRepository(ctx, s.st, isWriter, discoveryOptions(s.cfg), tools.ReindexRepositoryArgs{
			Repository: p.Repository, Force: p.Force, DryRun: p.DryRun,
		})
		return wrapResult(result, err)

	default:
		return nil, &rpcError{Code: rpcMethodNotFound, Message: fmt.Sprintf("unknown method %q", method)}
	}
}

func unmarshalParams(params json.RawMessage, v any) *rpcError {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &rpcError{Code: rpcInvalidParams, Message: "invalid params: " + err.Error()}
	}
	return nil
}

func wrapResult(result any, err error) (any, *rpcError) {
	if err != nil {
		return nil, &rpcError{Code: rpcInternalError, Message: err.Error()}
	}
	return result, nil
}
