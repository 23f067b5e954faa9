// File: stats/stats.go
// Package stats implements the "stats-get"/"stats-reset" device ops
// (§6) as a Prometheus collector.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on the Describe/Collect + prometheus.NewDesc/MustNewConstMetric
// idiom used by other example repos' RDMA-adjacent collectors (e.g. the
// rdma stats collector in the retrieval pack's ceems exporter): one
// static *prometheus.Desc per counter, labeled by port and queue, with
// values pulled fresh from the queue rings on every Collect rather than
// cached.

package stats

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/momentics/mlx4-core/qlifecycle"
)

const namespace = "mlx4"

var (
	opacketsDesc = prometheus.NewDesc(prometheus.BuildFQName(namespace, "tx", "packets_total"), "Tx packets posted.", []string{"port", "queue"}, nil)
	obytesDesc   = prometheus.NewDesc(prometheus.BuildFQName(namespace, "tx", "bytes_total"), "Tx bytes posted.", []string{"port", "queue"}, nil)
	odroppedDesc = prometheus.NewDesc(prometheus.BuildFQName(namespace, "tx", "dropped_total"), "Tx packets dropped (MR registration failure or linearization overflow).", []string{"port", "queue"}, nil)

	ipacketsDesc = prometheus.NewDesc(prometheus.BuildFQName(namespace, "rx", "packets_total"), "Rx packets delivered.", []string{"port", "queue"}, nil)
	ibytesDesc   = prometheus.NewDesc(prometheus.BuildFQName(namespace, "rx", "bytes_total"), "Rx bytes delivered.", []string{"port", "queue"}, nil)
	idroppedDesc = prometheus.NewDesc(prometheus.BuildFQName(namespace, "rx", "dropped_total"), "Rx completions with a non-success status.", []string{"port", "queue"}, nil)
	rxNombufDesc = prometheus.NewDesc(prometheus.BuildFQName(namespace, "rx", "nombuf_total"), "Failed mbuf replacement attempts during Rx burst.", []string{"port", "queue"}, nil)
)

// Snapshot is the aggregate counter set returned by the "stats-get"
// device op.
type Snapshot struct {
	Opackets, Obytes, Odropped                      uint64
	Ipackets, Ibytes, Idropped, RxNombuf             uint64
}

// Collector exposes one port's queue counters to Prometheus and backs
// the "stats-get"/"stats-reset" device ops.
type Collector struct {
	portLabel string
	port      *qlifecycle.Port
}

// NewCollector wraps port's queues under the given port label (e.g. its
// PCI address or interface name).
func NewCollector(portLabel string, port *qlifecycle.Port) *Collector {
	return &Collector{portLabel: portLabel, port: port}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- opacketsDesc
	ch <- obytesDesc
	ch <- odroppedDesc
	ch <- ipacketsDesc
	ch <- ibytesDesc
	ch <- idroppedDesc
	ch <- rxNombufDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for i, q := range c.port.TxQueues {
		if q == nil || q.Tx == nil {
			continue
		}
		label := queueLabel(i)
		ch <- prometheus.MustNewConstMetric(opacketsDesc, prometheus.CounterValue, float64(atomic.LoadUint64(&q.Tx.Opackets)), c.portLabel, label)
		ch <- prometheus.MustNewConstMetric(obytesDesc, prometheus.CounterValue, float64(atomic.LoadUint64(&q.Tx.Obytes)), c.portLabel, label)
		ch <- prometheus.MustNewConstMetric(odroppedDesc, prometheus.CounterValue, float64(atomic.LoadUint64(&q.Tx.Odropped)), c.portLabel, label)
	}
	for i, q := range c.port.RxQueues {
		if q == nil || q.Rx == nil {
			continue
		}
		label := queueLabel(i)
		ch <- prometheus.MustNewConstMetric(ipacketsDesc, prometheus.CounterValue, float64(atomic.LoadUint64(&q.Rx.Ipackets)), c.portLabel, label)
		ch <- prometheus.MustNewConstMetric(ibytesDesc, prometheus.CounterValue, float64(atomic.LoadUint64(&q.Rx.Ibytes)), c.portLabel, label)
		ch <- prometheus.MustNewConstMetric(idroppedDesc, prometheus.CounterValue, float64(atomic.LoadUint64(&q.Rx.Idropped)), c.portLabel, label)
		ch <- prometheus.MustNewConstMetric(rxNombufDesc, prometheus.CounterValue, float64(atomic.LoadUint64(&q.Rx.RxNombuf)), c.portLabel, label)
	}
}

// Get implements the "stats-get" device op: a point-in-time aggregate
// across every queue.
func (c *Collector) Get() Snapshot {
	var s Snapshot
	for _, q := range c.port.TxQueues {
		if q == nil || q.Tx == nil {
			continue
		}
		s.Opackets += q.Tx.Opackets
		s.Obytes += q.Tx.Obytes
		s.Odropped += q.Tx.Odropped
	}
	for _, q := range c.port.RxQueues {
		if q == nil || q.Rx == nil {
			continue
		}
		s.Ipackets += q.Rx.Ipackets
		s.Ibytes += q.Rx.Ibytes
		s.Idropped += q.Rx.Idropped
		s.RxNombuf += q.Rx.RxNombuf
	}
	return s
}

// Reset implements the "stats-reset" device op: zero every queue's
// soft counters in place.
func (c *Collector) Reset() {
	for _, q := range c.port.TxQueues {
		if q == nil || q.Tx == nil {
			continue
		}
		q.Tx.Opackets, q.Tx.Obytes, q.Tx.Odropped = 0, 0, 0
	}
	for _, q := range c.port.RxQueues {
		if q == nil || q.Rx == nil {
			continue
		}
		q.Rx.Ipackets, q.Rx.Ibytes, q.Rx.Idropped, q.Rx.RxNombuf = 0, 0, 0, 0
	}
}

func queueLabel(i int) string {
	return strconv.Itoa(i)
}
