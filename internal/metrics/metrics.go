// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes Prometheus collectors for research sessions, task
// execution, agent calls, and rate limiting.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "deep_research"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	phaseDuration   *prometheus.HistogramVec
	tasks           *prometheus.CounterVec
	agentCalls      *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	rateLimitWait   *prometheus.HistogramVec
	rateLimitRetry  *prometheus.CounterVec
	rateLimitExceed *prometheus.CounterVec
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns the process-wide Metrics registered with the default
// Prometheus registerer. Collectors are created once.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNew(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNew registers the collectors with reg. Collectors already registered
// under the same name are reused; any other registration error panics.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		phaseDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "phase_duration_seconds",
			Help:      "Time spent in each session phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase", "status"})),
		tasks: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "tasks_total",
			Help:      "Research tasks by terminal status.",
		}, []string{"status"})),
		agentCalls: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "calls_total",
			Help:      "Agent invocations by agent and result.",
		}, []string{"agent", "result"})),
		sessions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "sessions_total",
			Help:      "Finished research sessions by mode and outcome.",
		}, []string{"mode", "outcome"})),
		sessionsActive: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Research sessions currently running.",
		})),
		rateLimitWait: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time callers spent waiting for a grant.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 7, 10, 20, 60},
		}, []string{"target"})),
		rateLimitRetry: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "retries_total",
			Help:      "Retries after a quota error.",
		}, []string{"target"})),
		rateLimitExceed: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "exhausted_total",
			Help:      "Calls that gave up after exhausting quota retries.",
		}, []string{"target"})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObservePhase records time spent in a phase. status is "ok", or "failed"
// when the phase ended the session.
func (m *Metrics) ObservePhase(phase, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, status).Observe(d.Seconds())
}

// IncTask counts a task reaching a terminal status ("completed", "failed", "degraded").
func (m *Metrics) IncTask(status string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(status).Inc()
}

// IncAgentCall counts one agent invocation.
func (m *Metrics) IncAgentCall(agent string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.agentCalls.WithLabelValues(agent, result).Inc()
}

// SessionStarted increments the active session gauge.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

// SessionFinished decrements the active gauge and counts the outcome.
func (m *Metrics) SessionFinished(mode, outcome string) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.sessions.WithLabelValues(mode, outcome).Inc()
}

// ObserveWait implements ratelimit.Observer.
func (m *Metrics) ObserveWait(target string, wait time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitWait.WithLabelValues(target).Observe(wait.Seconds())
}

// ObserveRetry implements ratelimit.Observer.
func (m *Metrics) ObserveRetry(target string) {
	if m == nil {
		return
	}
	m.rateLimitRetry.WithLabelValues(target).Inc()
}

// ObserveExhausted implements ratelimit.Observer.
func (m *Metrics) ObserveExhausted(target string) {
	if m == nil {
		return
	}
	m.rateLimitExceed.WithLabelValues(target).Inc()
}

// TaskCounter returns the task counter for status. A nil Metrics returns an
// unregistered counter.
func (m *Metrics) TaskCounter(status string) prometheus.Counter {
	if m == nil {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: "deep_research_tasks_total"})
	}
	return m.tasks.WithLabelValues(status)
}
