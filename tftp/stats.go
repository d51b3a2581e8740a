/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package tftp

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclesh/welford"
	"github.com/prometheus/client_golang/prometheus"
)

// Stats tracks counters for a running Server, in the style of the
// responder package's JSON-exportable stats: plain atomic counters, safe
// for concurrent increment from every transfer goroutine.
type Stats struct {
	activeTransfers int64
	transfers       int64
	failures        int64

	durMu       sync.Mutex
	durations   *welford.Stats
	registry    *prometheus.Registry
	transfersPC prometheus.Counter
	failuresPC  prometheus.Counter
	activePG    prometheus.Gauge
	durMeanPG   prometheus.Gauge
}

// NewStats returns a zeroed Stats with its own Prometheus registry.
func NewStats() *Stats {
	s := &Stats{
		durations: welford.New(),
		registry:  prometheus.NewRegistry(),
	}
	s.transfersPC = prometheus.NewCounter(prometheus.CounterOpts{Name: "tftp_transfers_total", Help: "completed transfers"})
	s.failuresPC = prometheus.NewCounter(prometheus.CounterOpts{Name: "tftp_failures_total", Help: "failed transfers"})
	s.activePG = prometheus.NewGauge(prometheus.GaugeOpts{Name: "tftp_active_transfers", Help: "in-flight transfers"})
	s.durMeanPG = prometheus.NewGauge(prometheus.GaugeOpts{Name: "tftp_transfer_duration_mean_seconds", Help: "running mean transfer duration"})
	s.registry.MustRegister(s.transfersPC, s.failuresPC, s.activePG, s.durMeanPG)
	return s
}

// Registry exposes the Prometheus registry backing this Stats, for a
// caller to serve via promhttp.HandlerFor.
func (s *Stats) Registry() *prometheus.Registry { return s.registry }

// IncActiveTransfers / DecActiveTransfers track in-flight transfer count.
func (s *Stats) IncActiveTransfers() {
	atomic.AddInt64(&s.activeTransfers, 1)
	s.activePG.Inc()
}
func (s *Stats) DecActiveTransfers() {
	atomic.AddInt64(&s.activeTransfers, -1)
	s.activePG.Dec()
}

// IncTransfers counts one successfully completed transfer.
func (s *Stats) IncTransfers() {
	atomic.AddInt64(&s.transfers, 1)
	s.transfersPC.Inc()
}

// IncFailures counts one transfer that ended in an error.
func (s *Stats) IncFailures() {
	atomic.AddInt64(&s.failures, 1)
	s.failuresPC.Inc()
}

// ObserveDuration folds one transfer's wall-clock duration into the
// running mean/variance, Welford-style, the same shape c4u's clock math
// uses for oscillator samples.
func (s *Stats) ObserveDuration(d time.Duration) {
	s.durMu.Lock()
	s.durations.Add(d.Seconds())
	mean := s.durations.Mean()
	s.durMu.Unlock()
	s.durMeanPG.Set(mean)
}

// Snapshot is a point-in-time copy of the counters, suitable for
// marshaling to JSON on a stats endpoint.
type Snapshot struct {
	ActiveTransfers     int64   `json:"active_transfers"`
	Transfers           int64   `json:"transfers"`
	Failures            int64   `json:"failures"`
	MeanDurationSeconds float64 `json:"mean_duration_seconds"`
	StddevDurationSec   float64 `json:"stddev_duration_seconds"`
}

// Snapshot reads all counters atomically (with respect to each other,
// each individually, not as a single combined transaction).
func (s *Stats) Snapshot() Snapshot {
	s.durMu.Lock()
	mean := s.durations.Mean()
	stddev := s.durations.Stddev()
	s.durMu.Unlock()
	return Snapshot{
		ActiveTransfers:     atomic.LoadInt64(&s.activeTransfers),
		Transfers:           atomic.LoadInt64(&s.transfers),
		Failures:            atomic.LoadInt64(&s.failures),
		MeanDurationSeconds: mean,
		StddevDurationSec:   stddev,
	}
}
