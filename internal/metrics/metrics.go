// Package metrics counts one editing session's dispatched operations
// and exposes them in Prometheus text exposition format. Diagnostic
// only: a successful editing cycle never depends on it. §4.11.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/expfmt"
)

// Session counts the operations one diff run dispatches, plus any
// dispatch or parse errors encountered along the way. Each Session
// owns a private registry rather than using the global
// prometheus.DefaultRegisterer, so multiple sessions (or repeated
// sessions in one test binary) never collide on metric names.
type Session struct {
	registry *prometheus.Registry

	adds    prometheus.Counter
	changes prometheus.Counter
	renames prometheus.Counter
	deletes prometheus.Counter
	errors  prometheus.Counter
}

// NewSession registers the counter family on a fresh private registry.
func NewSession() *Session {
	s := &Session{
		registry: prometheus.NewRegistry(),
		adds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ldapvi_entries_added_total",
			Help: "Number of entries added during the editing session.",
		}),
		changes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ldapvi_entries_changed_total",
			Help: "Number of entries modified during the editing session.",
		}),
		renames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ldapvi_entries_renamed_total",
			Help: "Number of entries renamed during the editing session.",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ldapvi_entries_deleted_total",
			Help: "Number of entries deleted during the editing session.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ldapvi_dispatch_errors_total",
			Help: "Number of dispatch or parse errors encountered during the editing session.",
		}),
	}
	s.registry.MustRegister(s.adds, s.changes, s.renames, s.deletes, s.errors)
	return s
}

// Add, Change, Rename, Delete and Error bump their respective counter
// by one. Safe to call from the diff.Handler implementation the glue
// package wires to a live directory connection.
func (s *Session) Add()    { s.adds.Inc() }
func (s *Session) Change() { s.changes.Inc() }
func (s *Session) Rename() { s.renames.Inc() }
func (s *Session) Delete() { s.deletes.Inc() }
func (s *Session) Error()  { s.errors.Inc() }

// WriteTextTo dumps the registry's current values to w in Prometheus
// text exposition format, for the --metrics-file flag.
func (s *Session) WriteTextTo(w io.Writer) error {
	families, err := s.registry.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gathering: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encoding %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
