// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package darkpool

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	transferAttempts prometheus.Counter
	transfers        prometheus.Counter
	claims           prometheus.Counter
	rejections       *prometheus.CounterVec
	transferDuration prometheus.Histogram
}

func newMetrics(namespace string, reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		transferAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_attempts_total",
			Help:      "Proof-verified transfer attempts, including those whose amount was zeroed by the pool bounds.",
		}),
		transfers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_recorded_total",
			Help:      "Transfers committed to the ledger.",
		}),
		claims: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Transfers successfully claimed.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Rejected transfers and claims by reason.",
		}, []string{"reason"}),
		transferDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Time spent executing a transfer, rejected or not.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	for _, c := range []prometheus.Collector{
		m.transferAttempts,
		m.transfers,
		m.claims,
		m.rejections,
		m.transferDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
