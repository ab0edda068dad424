// Copyright 2025 The threadlocal Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMeterProvider() (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), reader
}

// sumOf returns the value of counter name for the given backend attribute.
func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name, backend string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is %T", name, m.Data)
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key(attrBackend)); ok && v.AsString() == backend {
					return dp.Value
				}
			}
		}
	}
	return 0
}

func TestRecorder(t *testing.T) {
	mp, reader := newTestMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	r, err := New(mp)
	require.NoError(t, err)

	r.BackendCreated("native")
	r.SlotCreated("native")
	r.SlotCreated("native")
	r.SlotCreated("fallback")
	r.SlotReclaimed("native")

	assert.Equal(t, int64(1), sumOf(t, reader, metricBackendsCreated, "native"))
	assert.Equal(t, int64(2), sumOf(t, reader, metricSlotsCreated, "native"))
	assert.Equal(t, int64(1), sumOf(t, reader, metricSlotsCreated, "fallback"))
	assert.Equal(t, int64(1), sumOf(t, reader, metricSlotsReclaimed, "native"))
	assert.Zero(t, sumOf(t, reader, metricSlotsReclaimed, "fallback"))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.BackendCreated("native")
		r.SlotCreated("native")
		r.SlotReclaimed("native")
	})
}

func TestDefault(t *testing.T) {
	assert.NotNil(t, Default())
	assert.Same(t, Default(), Default())
}
