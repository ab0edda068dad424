// Package telemetry records thread-local storage activity as OpenTelemetry
// metrics.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/kolkov/threadlocal"

	metricBackendsCreated = "threadlocal.backends.created"
	metricSlotsCreated    = "threadlocal.slots.created"
	metricSlotsReclaimed  = "threadlocal.slots.reclaimed"

	attrBackend = "backend"
)

// Recorder holds the instruments. A nil *Recorder records nothing.
type Recorder struct {
	backends  metric.Int64Counter
	created   metric.Int64Counter
	reclaimed metric.Int64Counter
}

// New creates a Recorder on mp.
func New(mp metric.MeterProvider) (*Recorder, error) {
	meter := mp.Meter(instrumentationName)

	backends, err := meter.Int64Counter(metricBackendsCreated,
		metric.WithDescription("Cell backends constructed"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create %s: %w", metricBackendsCreated, err)
	}
	created, err := meter.Int64Counter(metricSlotsCreated,
		metric.WithDescription("Per-thread values initialised"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create %s: %w", metricSlotsCreated, err)
	}
	reclaimed, err := meter.Int64Counter(metricSlotsReclaimed,
		metric.WithDescription("Per-thread values released on thread exit"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create %s: %w", metricSlotsReclaimed, err)
	}

	return &Recorder{backends: backends, created: created, reclaimed: reclaimed}, nil
}

// Default returns a Recorder on the global meter provider. Instruments
// created through the global provider follow a provider installed later
// with otel.SetMeterProvider.
var Default = sync.OnceValue(func() *Recorder {
	r, err := New(otel.GetMeterProvider())
	if err != nil {
		otel.Handle(err)
		return nil
	}
	return r
})

// BackendCreated counts one backend construction.
func (r *Recorder) BackendCreated(backend string) {
	if r == nil {
		return
	}
	r.backends.Add(context.Background(), 1, withBackend(backend))
}

// SlotCreated counts one per-thread value initialisation.
func (r *Recorder) SlotCreated(backend string) {
	if r == nil {
		return
	}
	r.created.Add(context.Background(), 1, withBackend(backend))
}

// SlotReclaimed counts one per-thread value released on thread exit.
func (r *Recorder) SlotReclaimed(backend string) {
	if r == nil {
		return
	}
	r.reclaimed.Add(context.Background(), 1, withBackend(backend))
}

func withBackend(backend string) metric.AddOption {
	return metric.WithAttributes(attribute.String(attrBackend, backend))
}
