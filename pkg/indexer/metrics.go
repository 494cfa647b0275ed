// Copyright 2025 Kadir Pekel
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

package indexer

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	reconcileRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spotdex_reconcile_runs_total",
		Help: "Completed full reconciliation runs.",
	})

	reconcileSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spotdex_reconcile_duration_seconds",
		Help: "Wall-clock duration of the last reconciliation run.",
	})

	engineSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spotdex_reconcile_elasticsearch_seconds",
		Help: "Time spent on Elasticsearch calls during the last run.",
	})

	documentsIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spotdex_documents_indexed_total",
		Help: "Documents written through bulk imports.",
	})

	documentsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spotdex_documents_deleted_total",
		Help: "Stale documents removed after reconciliation runs.",
	})

	mutationsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spotdex_mutations_applied_total",
		Help: "Mutations applied from the live change source.",
	}, []string{"kind"})
)

// ServeMetrics exposes /metrics on addr in the background. Errors only get
// logged; an unavailable metrics listener never stops the indexer.
func ServeMetrics(addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("Serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics listener failed", "addr", addr, "error", err)
		}
	}()
}
