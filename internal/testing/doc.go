// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package testing provides test helpers for mrcis integration tests.
//
// # Quick Start
//
// Use SetupTestBackend to create an in-memory mrcis backend with schema:
//
//	func TestMyFeature(t *testing.T) {
//	    backend := testing.SetupTestBackend(t)
//
//	    // Backend is ready with the mrcis schema initialized
//	    testing.InsertTestEntity(t, backend, "ent1", "repo1", "file1", "function", "DoThing", "pkg.DoThing", "go", 10, 20)
//
//	    // Query and verify
//	    ents := testing.QueryEntities(t, backend)
//	    require.Len(t, ents.Rows, 1)
//	}
//
// # Seeding Test Data
//
// The package provides helpers for inserting common test rows:
//   - InsertTestRepository: Add a repository to the database
//   - InsertTestFile: Add an indexed file to the database
//   - InsertTestEntity: Add a code entity to the database
//   - InsertTestRelation: Link a source entity to a target entity
//   - InsertTestPendingReference: Seed an unresolved reference for the resolver
//
// # Querying Test Data
//
// Helper functions for common queries:
//   - QueryEntities: Get all code entities
//   - QueryFiles: Get all indexed files
//   - QueryRelations: Get all relation edges
package testing
