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

package extract

import (
	"strconv"
	"strings"

	"github.com/mrcis/mrcis/internal/entity"
)

// DockerfileExtractor line-scans build files, since Dockerfiles have no
// bundled tree-sitter grammar. Each FROM is an Import of the base image
// (stage aliases land in the alias field), ENV/ARG/EXPOSE become
// Variables, ENTRYPOINT/CMD become Functions carrying the command
// vector in the docstring, and COPY --from=<stage> references the stage
// it copies out of.
type DockerfileExtractor struct{}

func NewDockerfileExtractor() *DockerfileExtractor { return &DockerfileExtractor{} }

func (e *DockerfileExtractor) Name() string { return "dockerfile (simplified)" }

func (e *DockerfileExtractor) Supports(path string) bool {
	name := baseName(path)
	return name == "Dockerfile" || strings.HasPrefix(name, "Dockerfile.") || hasAnyExt(path, ".dockerfile")
}

func (e *DockerfileExtractor) Extract(in Input) (*ExtractionResult, error) {
	lines := splitLines(in.Source)
	result := &ExtractionResult{}
	var currentStageID string
	var currentStage string
	stageIdx := 0

	for i, raw := range lines {
		lineNum := i + 1
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fields := strings.Fields(trimmed)
		instr := strings.ToUpper(fields[0])

		switch instr {
		case "FROM":
			if len(fields) < 2 {
				continue
			}
			base := fields[1]
			stageName := ""
			for j, f := range fields {
				if strings.EqualFold(f, "AS") && j+1 < len(fields) {
					stageName = fields[j+1]
				}
			}
			name := stageName
			if name == "" {
				name = "stage-" + strconv.Itoa(stageIdx)
			}
			stageIdx++
			currentStage = name
			currentStageID = entity.NewID("import", in.FilePath, name, strconv.Itoa(lineNum))

			result.Entities = append(result.Entities, &entity.Import{
				Hdr: entity.Header{
					ID:            currentStageID,
					RepositoryID:  in.RepositoryID,
					FileID:        in.FileID,
					Name:          name,
					QualifiedName: name,
					EntityType:    entity.TypeImport,
					Language:      "dockerfile",
					LineStart:     lineNum,
					LineEnd:       lineNum,
					Docstring:     leadingHashComment(lines, i),
					Visibility:    entity.VisibilityPublic,
					IsExported:    true,
				},
				SourceModule: base,
				Alias:        stageName,
			})

			if !isDockerScratchOrArg(base) {
				ln := lineNum
				result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
					ID:                  entity.NewID("pref", currentStageID, "imports", base),
					SourceEntityID:      currentStageID,
					SourceQualifiedName: name,
					SourceRepositoryID:  in.RepositoryID,
					TargetQualifiedName: base,
					RelationType:        entity.RelationImports,
					Status:              entity.PendingStatusPending,
					LineNumber:          &ln,
				})
			}

		case "ENV", "ARG":
			if len(fields) < 2 {
				continue
			}
			// ENV KEY=value, ENV KEY value, ARG NAME[=default]; only the
			// first key is modeled — multi-pair ENV lines are rare and the
			// remaining pairs carry no extra structure.
			key := fields[1]
			if eq := strings.Index(key, "="); eq >= 0 {
				key = key[:eq]
			}
			result.Entities = append(result.Entities, &entity.Variable{
				Hdr: entity.Header{
					ID:            entity.NewID("var", in.FilePath, key, strconv.Itoa(lineNum)),
					RepositoryID:  in.RepositoryID,
					FileID:        in.FileID,
					Name:          key,
					QualifiedName: entity.BuildQualifiedName(key, currentStage, "", "."),
					EntityType:    entity.TypeVariable,
					Language:      "dockerfile",
					LineStart:     lineNum,
					LineEnd:       lineNum,
					Signature:     trimmed,
					Visibility:    entity.VisibilityPublic,
					IsExported:    true,
				},
				IsConstant: instr == "ARG",
			})

		case "EXPOSE":
			for _, port := range fields[1:] {
				result.Entities = append(result.Entities, &entity.Variable{
					Hdr: entity.Header{
						ID:            entity.NewID("var", in.FilePath, "expose", port, strconv.Itoa(lineNum)),
						RepositoryID:  in.RepositoryID,
						FileID:        in.FileID,
						Name:          port,
						QualifiedName: entity.BuildQualifiedName("expose:"+port, currentStage, "", "."),
						EntityType:    entity.TypeVariable,
						Language:      "dockerfile",
						LineStart:     lineNum,
						LineEnd:       lineNum,
						Signature:     trimmed,
						Visibility:    entity.VisibilityPublic,
						IsExported:    true,
					},
				})
			}

		case "ENTRYPOINT", "CMD":
			name := strings.ToLower(instr)
			command := strings.TrimSpace(strings.TrimPrefix(trimmed, fields[0]))
			result.Entities = append(result.Entities, &entity.Function{
				Hdr: entity.Header{
					ID:            entity.NewID("func", in.FilePath, name, strconv.Itoa(lineNum)),
					RepositoryID:  in.RepositoryID,
					FileID:        in.FileID,
					Name:          name,
					QualifiedName: entity.BuildQualifiedName(name, currentStage, "", "."),
					EntityType:    entity.TypeFunction,
					Language:      "dockerfile",
					LineStart:     lineNum,
					LineEnd:       lineNum,
					Docstring:     command,
					SourceText:    trimmed,
					Visibility:    entity.VisibilityPublic,
					IsExported:    true,
				},
			})

		case "COPY":
			if !strings.Contains(trimmed, "--from=") {
				continue
			}
			from := extractFlagValue(trimmed, "--from=")
			if from == "" || currentStageID == "" {
				continue
			}
			ln := lineNum
			result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
				ID:                  entity.NewID("pref", currentStageID, "references", from, strconv.Itoa(lineNum)),
				SourceEntityID:      currentStageID,
				SourceQualifiedName: currentStage,
				SourceRepositoryID:  in.RepositoryID,
				TargetQualifiedName: from,
				RelationType:        entity.RelationReferences,
				Status:              entity.PendingStatusPending,
				LineNumber:          &ln,
				ContextSnippet:      trimmed,
			})
		}
	}

	return result, nil
}

func isDockerScratchOrArg(base string) bool {
	return base == "scratch" || strings.HasPrefix(base, "$") || strings.HasPrefix(base, "${")
}

func extractFlagValue(line, flag string) string {
	idx := strings.Index(line, flag)
	if idx < 0 {
		return ""
	}
	rest := line[idx+len(flag):]
	if sp := strings.IndexAny(rest, " \t"); sp >= 0 {
		rest = rest[:sp]
	}
	return rest
}
