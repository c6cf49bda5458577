// Package middleware provides observability instruments for the reactive
// scheduler.
//
// Both types implement reactive.Instrument and are installed with
// reactive.WithInstrument. Combine them with reactive.Instruments:
//
//	s := reactive.NewScheduler(
//	    reactive.WithInstrument(reactive.Instruments(
//	        middleware.Prometheus(middleware.WithNamespace("myapp")),
//	        middleware.OpenTelemetry(middleware.WithTracerName("myapp")),
//	    )),
//	)
//
// # Prometheus Metrics
//
// Prometheus counts flushes, dispatched items, observer failures and cycle
// breaks, and times every flush. The returned *Metrics also satisfies
// live.Metrics, so the same value can be handed to a live.Feed:
//
//	m := middleware.Prometheus()
//	feed := live.NewFeed(list, key, live.Config{Metrics: m})
//	http.Handle("/metrics", promhttp.Handler())
//
// # OpenTelemetry
//
// OpenTelemetry opens one span per flush. Skip small flushes with
// WithMinQueued:
//
//	middleware.OpenTelemetry(
//	    middleware.WithMinQueued(10),
//	    middleware.WithAttributes(attribute.String("service", "demo")),
//	)
package middleware
