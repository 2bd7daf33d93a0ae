// Copyright 2015 Google Inc. All Rights Reserved.
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

package dbus

import "github.com/prometheus/client_golang/prometheus"

// busMetrics tracks the dispatch loop's own health: how far the iteration counter has advanced, how deep the
// queues are running, how big the reply table has grown, and how often
// replies time out. Each Bus registers its own collector set so multiple
// connections in one process don't collide on label values.
type busMetrics struct {
	iterations      prometheus.Counter
	wqueueDepth     prometheus.Gauge
	rqueueDepth     prometheus.Gauge
	pendingReplies  prometheus.Gauge
	timeoutsFired   prometheus.Counter
	registry        *prometheus.Registry
}

func newBusMetrics() *busMetrics {
	reg := prometheus.NewRegistry()
	m := &busMetrics{
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dbus_process_iterations_total",
			Help: "Number of times process() advanced the dispatch state machine.",
		}),
		wqueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dbus_wqueue_depth",
			Help: "Current number of outbound messages queued.",
		}),
		rqueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dbus_rqueue_depth",
			Help: "Current number of inbound messages queued for dispatch.",
		}),
		pendingReplies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dbus_pending_replies",
			Help: "Current number of outstanding reply callbacks.",
		}),
		timeoutsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dbus_reply_timeouts_total",
			Help: "Number of reply callbacks that fired due to timeout rather than a reply.",
		}),
		registry: reg,
	}
	reg.MustRegister(m.iterations, m.wqueueDepth, m.rqueueDepth, m.pendingReplies, m.timeoutsFired)
	return m
}

// Registry exposes the per-Bus prometheus registry so an embedder can serve
// it (e.g. via promhttp.HandlerFor) alongside its own metrics.
func (b *Bus) Registry() *prometheus.Registry {
	return b.metrics.registry
}
