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

// Registry selects the extractor responsible for a given file path.
// Extractors are tried in registration order; the first match wins.
type Registry struct {
	extractors []Extractor
}

// Options carries the per-extractor knobs a caller may override.
type Options struct {
	MaxYAMLDepth int
}

// NewRegistry builds the default registry covering every supported
// language. At most one Options value is honored.
func NewRegistry(opts ...Options) *Registry {
	yamlEx := NewYAMLExtractor()
	if len(opts) > 0 && opts[0].MaxYAMLDepth > 0 {
		yamlEx.MaxDepth = opts[0].MaxYAMLDepth
	}
	return &Registry{
		extractors: []Extractor{
			NewGoExtractor(),
			NewPythonExtractor(),
			NewTypeScriptExtractor(),
			NewRustExtractor(),
			NewJavaExtractor(),
			NewKotlinExtractor(),
			NewRubyExtractor(),
			NewDockerfileExtractor(),
			NewMarkdownExtractor(),
			NewHTMLExtractor(),
			yamlEx,
		},
	}
}

// For returns the extractor that supports path, or nil if the file is not
// a recognized source type.
func (r *Registry) For(path string) Extractor {
	for _, ex := range r.extractors {
		if ex.Supports(path) {
			return ex
		}
	}
	return nil
}

// Extractors exposes the registered set, in selection order.
func (r *Registry) Extractors() []Extractor {
	return r.extractors
}
