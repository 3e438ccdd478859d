// Package metrics exposes bridge activity as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ltlmaps/leap-contracts/internal/consensus"
	"github.com/ltlmaps/leap-contracts/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leap"

// Seal sources.
const (
	SourceGossip = "gossip"
	SourceSync   = "sync"
	SourceRPC    = "rpc"
)

// Metrics owns a registry and the bridge collectors in it. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	events      *prometheus.CounterVec
	tipHeight   prometheus.Gauge
	rewardsPaid prometheus.Counter
	stakeMoved  *prometheus.CounterVec
	seals       *prometheus.CounterVec
	rpcCalls    *prometheus.CounterVec
	rpcLatency  *prometheus.HistogramVec
}

// New returns a registry holding the bridge collectors plus the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Bridge events committed, by kind.",
		}, []string{"kind"}),
		tipHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tip_height",
			Help:      "Height of the last block that advanced the canonical tip.",
		}),
		rewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewards_paid_base_units_total",
			Help:      "Epoch rewards paid out to operators.",
		}),
		stakeMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stake_base_units_total",
			Help:      "Stake moved into or out of the bridge.",
		}, []string{"direction"}),
		seals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seals_total",
			Help:      "Block seals submitted to the engine, by source and result.",
		}, []string{"source", "result"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "JSON-RPC calls served, by method and error code (0 on success).",
		}, []string{"method", "code"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_call_seconds",
			Help:      "JSON-RPC call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"method"}),
	}
	m.registry.MustRegister(
		m.events, m.tipHeight, m.rewardsPaid, m.stakeMoved, m.seals, m.rpcCalls, m.rpcLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Publish implements events.Sink.
func (m *Metrics) Publish(ev events.Event) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(ev.Kind)).Inc()
	switch ev.Kind {
	case events.TipAdvanced:
		m.tipHeight.Set(float64(ev.Height))
	case events.RewardClaimed:
		m.rewardsPaid.Add(float64(ev.Amount))
	case events.OperatorJoined:
		m.stakeMoved.WithLabelValues("in").Add(float64(ev.Amount))
	case events.OperatorRemoved:
		m.stakeMoved.WithLabelValues("out").Add(float64(ev.Amount))
	}
}

// ObserveSeal counts one seal submission from source with its outcome.
func (m *Metrics) ObserveSeal(source string, err error) {
	if m == nil {
		return
	}
	m.seals.WithLabelValues(source, SealResult(err)).Inc()
}

// SealResult names the outcome of a seal submission.
func SealResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, consensus.ErrDuplicateBlock):
		return "duplicate"
	case errors.Is(err, consensus.ErrDanglingParent):
		return "dangling"
	case errors.Is(err, consensus.ErrAuthorization):
		return "unauthorized"
	case errors.Is(err, consensus.ErrRateLimit):
		return "rate_limited"
	}
	return "rejected"
}

// ObserveRPC records one JSON-RPC call.
func (m *Metrics) ObserveRPC(method string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(took.Seconds())
}

// GaugeFunc registers a gauge sampled from fn at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}
