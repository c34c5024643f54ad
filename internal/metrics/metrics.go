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

// Package metrics exposes Prometheus counters/gauges for the indexing
// pipeline, the reference resolver, the embedding client, and runtime
// coordination state. Registration is lazy and process-wide; callers go
// through the narrow Record*/Set* helpers instead of importing
// prometheus directly.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type registry struct {
	once sync.Once

	filesIndexed   prometheus.Counter
	filesFailed    prometheus.Counter
	filesPermanent prometheus.Counter
	entitiesEmitted prometheus.Counter

	embedComputed prometheus.Counter
	embedErrors   prometheus.Counter
	embedRetries  prometheus.Counter

	referencesResolved   prometheus.Counter
	referencesUnresolved prometheus.Counter

	pipelineDuration prometheus.Histogram
	resolverDuration prometheus.Histogram

	queueDepth prometheus.Gauge
	writerMode prometheus.Gauge
}

var m registry

func (r *registry) init() {
	r.once.Do(func() {
		r.filesIndexed = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_files_indexed_total", Help: "Files successfully indexed"})
		r.filesFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_files_failed_total", Help: "Files that failed a processing attempt"})
		r.filesPermanent = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_files_permanent_failure_total", Help: "Files promoted to permanent_failure"})
		r.entitiesEmitted = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_entities_emitted_total", Help: "Code entities emitted by extractors"})

		r.embedComputed = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_embeddings_computed_total", Help: "Embeddings successfully computed"})
		r.embedErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_embeddings_errors_total", Help: "Embedding provider errors"})
		r.embedRetries = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_embeddings_retries_total", Help: "Embedding call retries"})

		r.referencesResolved = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_references_resolved_total", Help: "Pending references promoted to relations"})
		r.referencesUnresolved = prometheus.NewCounter(prometheus.CounterOpts{Name: "mrcis_references_unresolved_total", Help: "Pending references marked unresolved after max_attempts"})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
		r.pipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "mrcis_pipeline_seconds", Help: "Per-file pipeline duration", Buckets: buckets})
		r.resolverDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "mrcis_resolver_batch_seconds", Help: "Resolver batch duration", Buckets: buckets})

		r.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{Name: "mrcis_queue_depth", Help: "Current work queue length"})
		r.writerMode = prometheus.NewGauge(prometheus.GaugeOpts{Name: "mrcis_writer_mode", Help: "1 if this process holds the instance lock, 0 if read-only"})

		prometheus.MustRegister(
			r.filesIndexed, r.filesFailed, r.filesPermanent, r.entitiesEmitted,
			r.embedComputed, r.embedErrors, r.embedRetries,
			r.referencesResolved, r.referencesUnresolved,
			r.pipelineDuration, r.resolverDuration,
			r.queueDepth, r.writerMode,
		)
	})
}

// RecordFileIndexed increments the indexed-files counter and records
// the per-file pipeline duration in seconds.
func RecordFileIndexed(entityCount int, durationSeconds float64) {
	m.init()
	m.filesIndexed.Inc()
	m.entitiesEmitted.Add(float64(entityCount))
	m.pipelineDuration.Observe(durationSeconds)
}

// RecordFileFailed increments the transient-failure counter.
func RecordFileFailed() { m.init(); m.filesFailed.Inc() }

// RecordFilePermanentFailure increments the permanent-failure counter.
func RecordFilePermanentFailure() { m.init(); m.filesPermanent.Inc() }

// RecordEmbedding increments the computed-embeddings counter.
func RecordEmbedding() { m.init(); m.embedComputed.Inc() }

// RecordEmbeddingError increments the embedding-error counter.
func RecordEmbeddingError() { m.init(); m.embedErrors.Inc() }

// RecordEmbeddingRetry increments the embedding-retry counter.
func RecordEmbeddingRetry() { m.init(); m.embedRetries.Inc() }

// RecordResolverBatch records one resolver pass: how many references
// resolved vs. went unresolved, plus its duration.
func RecordResolverBatch(resolved, unresolved int, durationSeconds float64) {
	m.init()
	m.referencesResolved.Add(float64(resolved))
	m.referencesUnresolved.Add(float64(unresolved))
	m.resolverDuration.Observe(durationSeconds)
}

// SetQueueDepth records the current work queue length.
func SetQueueDepth(n int) { m.init(); m.queueDepth.Set(float64(n)) }

// SetWriterMode records whether this process currently holds the
// instance lock (1) or is running read-only (0).
func SetWriterMode(isWriter bool) {
	m.init()
	if isWriter {
		m.writerMode.Set(1)
	} else {
		m.writerMode.Set(0)
	}
}
