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
	"testing"

	"github.com/mrcis/mrcis/internal/entity"
)

func TestRubyExtractor_ClassWithMethodAndSuperclass(t *testing.T) {
	src := []byte(`class Widget < ApplicationRecord
  belongs_to :account

  def render
    true
  end
end
`)
	ex := NewRubyExtractor()
	res, err := ex.Extract(Input{FilePath: "app/models/widget.rb", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	var class *entity.Class
	for _, e := range res.Entities {
		if c, ok := e.(*entity.Class); ok {
			class = c
		}
	}
	if class == nil || len(class.BaseClasses) == 0 || class.BaseClasses[0] != "ApplicationRecord" {
		t.Fatalf("expected Widget < ApplicationRecord, got %+v", class)
	}

	var sawBelongsTo bool
	for _, p := range res.PendingReferences {
		if p.TargetQualifiedName == "account" && p.RelationType == entity.RelationReferences {
			sawBelongsTo = true
		}
	}
	if !sawBelongsTo {
		t.Fatalf("expected belongs_to :account to produce a references pending reference, got %+v", res.PendingReferences)
	}
}

func TestRubyExtractor_RakeTaskWithNamespace(t *testing.T) {
	src := []byte(`namespace :db do
  desc "Migrate the database"
  task :migrate do
    puts "migrating"
  end
end
`)
	ex := NewRubyExtractor()
	res, err := ex.Extract(Input{FilePath: "lib/tasks/db.rake", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	var task *entity.Task
	for _, e := range res.Entities {
		if tk, ok := e.(*entity.Task); ok {
			task = tk
		}
	}
	if task == nil || task.Hdr.QualifiedName != "db:migrate" {
		t.Fatalf("expected task qualified name db:migrate, got %+v", task)
	}
}
