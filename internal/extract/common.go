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
	"strings"
	"unicode"

	"github.com/mrcis/mrcis/internal/entity"
)

// callBinding is one call-site observed inside a function/method body,
// emitted by every extractor's call-site walk.
type callBinding struct {
	Callee       string // full textual callee, e.g. "strings.Contains" or "helper"
	Receiver     string // "" when unqualified or already bound to self/this/cls
	Line         int
	Snippet      string
	Instantiates bool
}

// selfQualifiers are receiver tokens that mean "the enclosing class/impl",
// resolved at extraction time rather than left for the resolver.
var selfQualifiers = map[string]bool{
	"self": true,
	"this": true,
	"cls":  true,
}

// dedupeCalls deduplicates call bindings by callee text within one body,
// preserving first-seen order.
func dedupeCalls(calls []callBinding) []callBinding {
	seen := make(map[string]bool, len(calls))
	out := make([]callBinding, 0, len(calls))
	for _, c := range calls {
		if seen[c.Callee] {
			continue
		}
		seen[c.Callee] = true
		out = append(out, c)
	}
	return out
}

// splitReceiver splits a dotted callee "a.b.c" into receiver "a.b" and
// simple callee "c".
func splitReceiver(dotted string) (receiver, simple string) {
	idx := strings.LastIndex(dotted, ".")
	if idx < 0 {
		return "", dotted
	}
	return dotted[:idx], dotted[idx+1:]
}

// resolveSelfQualifier resolves a self/this/cls-qualified callee to the
// enclosing class's simple name: both the recorded string and the
// target_qualified_name become "<EnclosingClass>.<method>", and
// receiver_expr becomes empty since it is already bound.
func resolveSelfQualifier(receiver, simple, enclosingClass string) (resolvedCallText string, resolvedReceiver string, bound bool) {
	if receiver == "" || !selfQualifiers[receiver] || enclosingClass == "" {
		return "", receiver, false
	}
	return enclosingClass + "." + simple, "", true
}

// isUppercaseFirst reports whether s's first rune is uppercase, the
// fallback instantiation heuristic for languages with no explicit `new`.
func isUppercaseFirst(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

// newPendingReference builds a PendingReference for a call/instantiate
// site, the common shape emitted by every extractor.
func newPendingReference(sourceID, sourceQName, repoID, targetPattern string, relType entity.RelationType, line int, snippet, receiver string) entity.PendingReference {
	ln := line
	return entity.PendingReference{
		ID:                  entity.NewID("pref", sourceID, string(relType), targetPattern, snippet),
		SourceEntityID:      sourceID,
		SourceQualifiedName: sourceQName,
		SourceRepositoryID:  repoID,
		TargetQualifiedName: targetPattern,
		RelationType:        relType,
		Status:              entity.PendingStatusPending,
		LineNumber:          &ln,
		ContextSnippet:      snippet,
		ReceiverExpr:        receiver,
	}
}

// builtinDenylist returns a lookup set from a comma-free slice of names.
func builtinDenylist(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// leadingHashComment captures a run of leading `#` line comments
// immediately above a line (Python/Ruby/YAML/Dockerfile docstring style).
func leadingHashComment(lines []string, defLine int) string {
	var collected []string
	for i := defLine - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "#") {
			collected = append([]string{strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))}, collected...)
			continue
		}
		if trimmed == "" {
			continue
		}
		break
	}
	return strings.Join(collected, "\n")
}

// leadingSlashDocComment captures a run of leading `///` or `//` comment
// lines immediately above defLine (Rust/Go/Java/Kotlin/TS doc style).
func leadingSlashDocComment(lines []string, defLine int, prefixes ...string) string {
	var collected []string
	for i := defLine - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		matched := false
		for _, p := range prefixes {
			if strings.HasPrefix(trimmed, p) {
				collected = append([]string{strings.TrimSpace(strings.TrimPrefix(trimmed, p))}, collected...)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if trimmed == "" {
			continue
		}
		break
	}
	return strings.Join(collected, "\n")
}

// leadingBlockComment captures a /** ... */ or /* ... */ block ending on
// the line immediately above defLine.
func leadingBlockComment(lines []string, defLine int) string {
	end := -1
	for i := defLine - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if strings.HasSuffix(trimmed, "*/") {
			end = i
		}
		break
	}
	if end < 0 {
		return ""
	}
	start := end
	for start >= 0 {
		if strings.Contains(lines[start], "/*") {
			break
		}
		start--
	}
	if start < 0 {
		return ""
	}
	var b strings.Builder
	for i := start; i <= end; i++ {
		line := strings.TrimSpace(lines[i])
		line = strings.TrimPrefix(line, "/**")
		line = strings.TrimPrefix(line, "/*")
		line = strings.TrimSuffix(line, "*/")
		line = strings.TrimPrefix(line, "*")
		line = strings.TrimSpace(line)
		if line != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(line)
		}
	}
	return b.String()
}
