// Copyright © 2023 Meroxa, Inc. & Yalantis
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

package migration

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// batch outcomes used as the outcome label value.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics collects Prometheus metrics of the executed batches.
// It implements [writer.Observer].
type Metrics struct {
	nodesMerged   *prometheus.CounterVec
	batches       *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
}

// NewMetrics creates the migration metrics and registers them with the registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		nodesMerged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "galaxy_nodes_merged_total",
				Help: "Total number of distinct nodes merged, summed over batches",
			},
			[]string{"entity"},
		),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "galaxy_batches_total",
				Help: "Total number of batches processed",
			},
			[]string{"entity", "outcome"},
		),
		batchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "galaxy_batch_duration_seconds",
				Help:    "Duration of batch statement round trips",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"entity"},
		),
	}

	for _, collector := range []prometheus.Collector{m.nodesMerged, m.batches, m.batchDuration} {
		if err := registerer.Register(collector); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	return m, nil
}

// ObserveBatch records the outcome of a batch.
// Batches rejected before their round trip carry no duration.
func (m *Metrics) ObserveBatch(entity string, affected int, elapsed time.Duration, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}

	m.batches.WithLabelValues(entity, outcome).Inc()
	m.nodesMerged.WithLabelValues(entity).Add(float64(affected))

	if elapsed > 0 {
		m.batchDuration.WithLabelValues(entity).Observe(elapsed.Seconds())
	}
}
