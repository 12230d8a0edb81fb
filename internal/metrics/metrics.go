/*
Copyright © 2021 the co2diag authors.
This file is part of co2diag.

co2diag is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

co2diag is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with co2diag.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package metrics holds the Prometheus collectors for the processing
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DatasetsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "co2diag_datasets_loaded_total",
			Help: "Total datasets materialized by providers",
		},
		[]string{"provider"},
	)

	DatasetFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "co2diag_dataset_failures_total",
			Help: "Total per-dataset failures in batch operations",
		},
		[]string{"op"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "co2diag_stage_duration_seconds",
			Help:    "Time spent advancing a collection to a pipeline stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "co2diag_fetch_retries_total",
			Help: "Total retried object fetches from remote catalogs",
		},
		[]string{"bucket"},
	)
)
