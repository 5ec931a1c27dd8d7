// Package otel bridges authguard metrics into OpenTelemetry.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// one Int64ObservableGauge per cumulative histogram bucket, all fed by a
// single callback that reads the Manager's snapshot at collection time. The
// caller owns the MeterProvider.
package otel
